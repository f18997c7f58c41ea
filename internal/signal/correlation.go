package signal

// correlationGroups maps symbols to coarse sector buckets. Holding any symbol
// in a bucket penalises further entries from the same bucket.
var correlationGroups = map[string]string{
	// tech
	"AAPL": "tech", "MSFT": "tech", "GOOGL": "tech", "GOOG": "tech",
	"AMZN": "tech", "NVDA": "tech", "AMD": "tech", "INTC": "tech",
	"CRM": "tech", "ORCL": "tech", "ADBE": "tech", "AVGO": "tech",

	// finance
	"JPM": "finance", "BAC": "finance", "GS": "finance", "MS": "finance",
	"WFC": "finance", "C": "finance", "V": "finance", "MA": "finance",

	// energy
	"XOM": "energy", "CVX": "energy", "COP": "energy", "SLB": "energy",

	// healthcare
	"JNJ": "healthcare", "PFE": "healthcare", "UNH": "healthcare",
	"MRK": "healthcare", "ABBV": "healthcare", "LLY": "healthcare",

	// communication
	"META": "communication", "NFLX": "communication", "DIS": "communication",
	"T": "communication", "VZ": "communication", "CMCSA": "communication",

	// consumer
	"WMT": "consumer", "COST": "consumer", "PG": "consumer", "KO": "consumer",
	"PEP": "consumer", "MCD": "consumer", "NKE": "consumer", "HD": "consumer",
	"TSLA": "consumer",

	// broad-market index funds
	"SPY": "index", "QQQ": "index", "IWM": "index", "DIA": "index", "VTI": "index",
}

// CorrelationGroup returns the sector bucket for a symbol. Unknown symbols
// fall into "other", which never conflicts with anything.
func CorrelationGroup(symbol string) string {
	if g, ok := correlationGroups[symbol]; ok {
		return g
	}
	return "other"
}
