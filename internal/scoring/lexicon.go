package scoring

import "strings"

// GateBlocklist rejects a token outright before any scoring happens.
var GateBlocklist = []string{
	"scam", "rug", "rugpull", "honeypot", "honey", "fake", "test",
	"porn", "xxx", "sex", "nude", "nsfw", "adult",
	"hitler", "nazi", "racist", "hate",
	"elon", "musk", "trump", "biden", "politics",
	"airdrop", "presale", "private", "whitelist",
}

// penaltyWords cost a token 40 points and raise a red flag.
var penaltyWords = []string{"scam", "rug", "honeypot", "fake", "test", "porn", "xxx"}

// memeWords earn a bonus.
var memeWords = []string{"pepe", "doge", "shib", "moon", "ape", "monkey", "cat", "dog", "frog", "猴", "狗", "猫"}

// MatchWord returns the first word contained in name or symbol, case-insensitively.
func MatchWord(words []string, name, symbol string) (string, bool) {
	name = strings.ToLower(name)
	symbol = strings.ToLower(symbol)
	for _, w := range words {
		if strings.Contains(name, w) || strings.Contains(symbol, w) {
			return w, true
		}
	}
	return "", false
}

// Blocked reports whether the token's name or symbol hits the gate blocklist.
func Blocked(name, symbol string) (string, bool) {
	return MatchWord(GateBlocklist, name, symbol)
}
