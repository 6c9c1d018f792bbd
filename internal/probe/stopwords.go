package probe

// stopwords is a small hand-picked stopword set. commonWords approximates
// the "top-N English set" the spec refers to for rare-word detection; both
// are intentionally small — the probe only needs to exclude the obviously
// frequent words, not perform full NLP frequency ranking.
var stopwords = map[string]bool{
	"the": true, "and": true, "that": true, "have": true, "for": true,
	"not": true, "with": true, "you": true, "this": true, "but": true,
	"his": true, "from": true, "they": true, "say": true, "her": true,
	"she": true, "will": true, "one": true, "all": true, "would": true,
	"there": true, "their": true, "what": true, "out": true, "about": true,
	"who": true, "get": true, "which": true, "when": true, "make": true,
	"can": true, "like": true, "time": true, "just": true, "him": true,
	"know": true, "take": true, "into": true, "your": true, "some": true,
	"could": true, "them": true, "than": true, "then": true, "now": true,
	"only": true, "come": true, "over": true, "think": true, "also": true,
	"back": true, "after": true, "work": true, "first": true, "well": true,
	"even": true, "want": true, "because": true, "these": true, "give": true,
	"most": true, "please": true, "need": true, "tell": true, "does": true,
}

var commonWords = map[string]bool{
	"people": true, "year": true, "good": true, "woman": true, "through": true,
	"life": true, "child": true, "world": true, "school": true, "state": true,
	"family": true, "student": true, "group": true, "country": true, "problem": true,
	"hand": true, "part": true, "place": true, "case": true, "week": true,
	"company": true, "system": true, "program": true, "question": true, "government": true,
	"number": true, "night": true, "point": true, "home": true, "water": true,
	"room": true, "mother": true, "area": true, "money": true, "story": true,
	"fact": true, "month": true, "lot": true, "right": true, "study": true,
	"book": true, "eye": true, "job": true, "word": true, "business": true,
	"issue": true, "side": true, "kind": true, "head": true, "house": true,
	"service": true, "friend": true, "father": true, "power": true, "hour": true,
	"game": true, "line": true, "end": true, "member": true, "law": true,
	"car": true, "city": true, "community": true, "name": true, "president": true,
	"team": true, "minute": true, "idea": true, "body": true, "information": true,
	"face": true, "others": true, "level": true, "office": true, "door": true,
	"health": true, "person": true, "art": true, "war": true, "history": true,
}
