package search

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/stayflow/gateway/internal/app/models"
)

// Canonicalize normalizes search params so that equivalent requests collapse
// to the same form: currency uppercased (USD when absent), residency and
// language lowercased. Rooms stay in the order the caller provided them, and
// child ages keep their order within each room, so the response always maps
// back onto the caller's room list.
func Canonicalize(p models.SearchParams) models.SearchParams {
	out := p

	out.Currency = strings.ToUpper(strings.TrimSpace(p.Currency))
	if out.Currency == "" {
		out.Currency = "USD"
	}
	out.Residency = normalizeResidency(p.Residency)
	out.Language = strings.ToLower(strings.TrimSpace(p.Language))

	out.Guests = make([]models.RoomGuests, len(p.Guests))
	for i, room := range p.Guests {
		children := make([]int, len(room.Children))
		copy(children, room.Children)
		out.Guests[i] = models.RoomGuests{Adults: room.Adults, Children: children}
	}
	return out
}

// normalizeResidency maps inputs like "en-US" or "US" to the lowercase
// two-letter country code the upstream expects.
func normalizeResidency(residency string) string {
	r := strings.ToLower(strings.TrimSpace(residency))
	if i := strings.LastIndexAny(r, "-_"); i >= 0 {
		r = r[i+1:]
	}
	return r
}

func encodeRoom(room models.RoomGuests) string {
	if len(room.Children) == 0 {
		return strconv.Itoa(room.Adults) + "a"
	}
	ages := make([]string, len(room.Children))
	for i, age := range room.Children {
		ages[i] = strconv.Itoa(age)
	}
	return strconv.Itoa(room.Adults) + "a-" + strings.Join(ages, ",")
}

// Signature derives the cache key for a canonical search. Residency and
// language are deliberately excluded: they vary per caller without changing
// which hotels and rates come back in a meaningful way for caching.
func Signature(p models.SearchParams) string {
	p = Canonicalize(p)

	rooms := make([]string, len(p.Guests))
	for i, room := range p.Guests {
		rooms[i] = encodeRoom(room)
	}

	material := fmt.Sprintf("%d|%s|%s|%s|%s",
		p.RegionID, p.CheckIn, p.CheckOut, strings.Join(rooms, ";"), p.Currency)
	sum := md5.Sum([]byte(material))
	return hex.EncodeToString(sum[:])
}
