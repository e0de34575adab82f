package hashjob

import "strings"

// indexToCombination renders idx as a length-length string over
// charset (base len(charset)), most-significant-digit first.
func indexToCombination(charset string, length int, idx int64) string {
	base := int64(len(charset))
	out := make([]byte, length)
	for pos := length - 1; pos >= 0; pos-- {
		out[pos] = charset[idx%base]
		idx /= base
	}
	return string(out)
}

// dictionaryEntry maps idx to the word/mutation pair it names: word at
// floor(idx/M), mutation at idx mod M, where M is len(mutations) (or 1
// when there are none, so every word is tried unmutated).
func dictionaryEntry(words, mutations []string, idx int64) (word, mutation string) {
	m := int64(len(mutations))
	if m == 0 {
		return words[idx], ""
	}
	return words[idx/m], mutations[idx%m]
}

// applyMutation renders word under mutation. Unrecognized mutation
// strings are treated as a literal suffix to append (e.g. "123", "!").
func applyMutation(word, mutation string) string {
	switch mutation {
	case "", "none":
		return word
	case "upper":
		return strings.ToUpper(word)
	case "lower":
		return strings.ToLower(word)
	case "capitalize":
		if word == "" {
			return word
		}
		return strings.ToUpper(word[:1]) + word[1:]
	case "reverse":
		runes := []rune(word)
		for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
			runes[i], runes[j] = runes[j], runes[i]
		}
		return string(runes)
	case "leet":
		r := strings.NewReplacer("a", "4", "e", "3", "i", "1", "o", "0", "s", "5")
		return r.Replace(strings.ToLower(word))
	default:
		return word + mutation
	}
}
