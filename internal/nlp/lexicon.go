package nlp

import "unicode"

var closedClass = map[string]Tag{}

func init() {
	add := func(tag Tag, words ...string) {
		for _, w := range words {
			closedClass[w] = tag
		}
	}
	add(TagDet, "a", "an", "the", "this", "that", "these", "those", "my", "our", "your",
		"his", "her", "their", "its", "some", "any", "each", "every", "another")
	add(TagAdp, "on", "at", "in", "by", "for", "from", "to", "until", "till", "til", "of",
		"with", "about", "after", "before", "during", "around", "through", "into", "over")
	add(TagCconj, "and", "or", "but", "plus", "&")
	add(TagPron, "i", "we", "you", "he", "she", "they", "it", "me", "us", "them", "him",
		"there", "i've", "we've", "i'm", "we're", "there's")
	add(TagAux, "have", "has", "had", "am", "is", "are", "was", "were", "be", "been",
		"will", "would", "shall", "should", "can", "could", "do", "does", "did", "got",
		"gotta", "need", "must", "may", "might")
	add(TagPart, "not", "also", "then", "please", "just")
	add(TagAdv, "later", "afterwards", "again", "too", "next", "following")
}

func lookupTag(word string) Tag {
	if tag, ok := closedClass[word]; ok {
		return tag
	}
	allDigits, anyLetter := true, false
	for _, r := range word {
		switch {
		case unicode.IsLetter(r):
			anyLetter = true
			allDigits = false
		case unicode.IsDigit(r):
		default:
			allDigits = false
		}
	}
	if allDigits {
		return TagNum
	}
	if !anyLetter {
		return TagPunct
	}
	return TagNoun
}
