package destination

// staticRegion is one compiled-in destination. The static map is the
// authoritative override for region ids: the resolver never lets a cached or
// upstream value shadow it.
type staticRegion struct {
	ID   int
	Name string
}

// staticRegions maps normalized destination names (and aliases) to regions.
// Keys must already be in normalized form: lowercase, punctuation stripped,
// whitespace collapsed, comma suffix dropped.
var staticRegions = map[string]staticRegion{
	// United States
	"new york":       {2621, "New York"},
	"new york city":  {2621, "New York"},
	"nyc":            {2621, "New York"},
	"manhattan":      {2621, "New York"},
	"los angeles":    {1555, "Los Angeles"},
	"la":             {1555, "Los Angeles"},
	"las vegas":      {2007, "Las Vegas"},
	"vegas":          {2007, "Las Vegas"},
	"miami":          {2297, "Miami"},
	"miami beach":    {2298, "Miami Beach"},
	"orlando":        {2619, "Orlando"},
	"san francisco":  {2910, "San Francisco"},
	"sf":             {2910, "San Francisco"},
	"chicago":        {1135, "Chicago"},
	"boston":         {834, "Boston"},
	"washington":     {3277, "Washington"},
	"washington dc":  {3277, "Washington"},
	"dc":             {3277, "Washington"},
	"seattle":        {2957, "Seattle"},
	"san diego":      {2908, "San Diego"},
	"houston":        {1625, "Houston"},
	"dallas":         {1289, "Dallas"},
	"atlanta":        {576, "Atlanta"},
	"denver":         {1327, "Denver"},
	"phoenix":        {2735, "Phoenix"},
	"philadelphia":   {2734, "Philadelphia"},
	"new orleans":    {2620, "New Orleans"},
	"nashville":      {2541, "Nashville"},
	"austin":         {592, "Austin"},
	"honolulu":       {1622, "Honolulu"},
	"portland":       {2767, "Portland"},
	"san antonio":    {2906, "San Antonio"},

	// International
	"london":         {2114, "London"},
	"paris":          {2676, "Paris"},
	"rome":           {2851, "Rome"},
	"barcelona":      {658, "Barcelona"},
	"madrid":         {2205, "Madrid"},
	"amsterdam":      {428, "Amsterdam"},
	"berlin":         {742, "Berlin"},
	"vienna":         {3247, "Vienna"},
	"prague":         {2772, "Prague"},
	"lisbon":         {2103, "Lisbon"},
	"dubai":          {1370, "Dubai"},
	"singapore":      {3010, "Singapore"},
	"tokyo":          {3137, "Tokyo"},
	"bangkok":        {649, "Bangkok"},
	"hong kong":      {1621, "Hong Kong"},
	"sydney":         {3091, "Sydney"},
	"toronto":        {3144, "Toronto"},
	"vancouver":      {3220, "Vancouver"},
	"mexico city":    {2294, "Mexico City"},
	"cancun":         {1023, "Cancun"},
	"istanbul":       {1658, "Istanbul"},
	"athens":         {579, "Athens"},
	"dublin":         {1372, "Dublin"},
	"edinburgh":      {1407, "Edinburgh"},
	"munich":         {2523, "Munich"},
}
