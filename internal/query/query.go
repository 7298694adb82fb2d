// Package query normalizes search queries and classifies user intent for
// the recall-answer loop: stripping stop words while preserving code
// identifiers improves full-text recall; classifying intent as
// "exploration" vs "modification" lets callers size the injection budget
// and pick an appropriate tone.
package query

import (
	"regexp"
	"strings"
)

var frStopWords = map[string]bool{
	"le": true, "la": true, "les": true, "un": true, "une": true, "des": true,
	"du": true, "de": true, "en": true, "dans": true, "pour": true, "avec": true,
	"sur": true, "par": true, "qui": true, "que": true, "est": true, "sont": true,
	"au": true, "aux": true, "ce": true, "cette": true, "ces": true, "se": true,
	"sa": true, "son": true, "ses": true, "ne": true, "pas": true, "ou": true,
	"et": true, "mais": true, "donc": true, "car": true, "ni": true, "si": true,
	"comme": true, "comment": true, "il": true, "elle": true, "on": true,
	"nous": true, "vous": true, "ils": true, "elles": true, "je": true, "tu": true,
	"mon": true, "ton": true, "notre": true, "votre": true, "leur": true,
	"leurs": true, "y": true, "dont": true, "où": true,
}

var enStopWords = map[string]bool{
	"the": true, "a": true, "an": true, "in": true, "on": true, "at": true,
	"to": true, "for": true, "of": true, "with": true, "by": true, "from": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true,
	"being": true, "have": true, "has": true, "had": true, "do": true, "does": true,
	"did": true, "will": true, "would": true, "could": true, "should": true,
	"may": true, "might": true, "can": true, "shall": true, "it": true, "its": true,
	"this": true, "that": true, "these": true, "those": true, "i": true, "me": true,
	"my": true, "we": true, "our": true, "you": true, "your": true, "he": true,
	"him": true, "his": true, "she": true, "her": true, "they": true, "them": true,
	"their": true, "not": true, "no": true, "nor": true, "so": true, "but": true,
	"or": true, "and": true, "if": true, "then": true, "about": true, "up": true,
	"out": true, "into": true, "over": true, "after": true, "before": true,
}

var questionWords = map[string]bool{
	"how": true, "what": true, "where": true, "when": true, "why": true,
	"which": true, "who": true, "whom": true, "comment": true, "quoi": true,
	"quel": true, "quelle": true, "quels": true, "quelles": true, "pourquoi": true,
}

var (
	camelRE = regexp.MustCompile(`[a-z][A-Z]`)
	snakeRE = regexp.MustCompile(`[a-zA-Z]_[a-zA-Z]`)
	upperRE = regexp.MustCompile(`^[A-Z][A-Z0-9_]{2,}$`)
)

func isAllStopWord(w string) bool {
	lw := strings.ToLower(w)
	return frStopWords[lw] || enStopWords[lw] || questionWords[lw]
}

// isIdentifier reports whether word looks like a code identifier:
// camelCase/PascalCase, snake_case, an UPPER_CASE constant, or a dotted
// path (e.g. com.example.Foo).
func isIdentifier(word string) bool {
	if camelRE.MatchString(word) {
		return true
	}
	if snakeRE.MatchString(word) {
		return true
	}
	if upperRE.MatchString(word) {
		return true
	}
	if strings.Contains(word, ".") && !strings.HasSuffix(word, ".") {
		return true
	}
	return false
}

// Normalize strips French/English stop words and question words from an
// FTS query while unconditionally preserving anything that looks like a
// code identifier. Never returns an empty string: falls back to the
// original text if stripping would remove everything.
func Normalize(text string) string {
	words := strings.Fields(strings.TrimSpace(text))
	if len(words) == 0 {
		return text
	}
	kept := make([]string, 0, len(words))
	for _, w := range words {
		if isIdentifier(w) {
			kept = append(kept, w)
			continue
		}
		if isAllStopWord(w) {
			continue
		}
		kept = append(kept, w)
	}
	if len(kept) == 0 {
		return text
	}
	return strings.Join(kept, " ")
}

// Mode is the classified user intent.
type Mode string

const (
	ModeExploration Mode = "exploration"
	ModeModification Mode = "modification"
)

var modificationVerbs = map[string]bool{
	"add": true, "replace": true, "refactor": true, "fix": true, "create": true,
	"delete": true, "update": true, "modify": true, "remove": true, "rename": true,
	"implement": true, "migrate": true, "upgrade": true, "configure": true,
	"install": true, "uninstall": true, "change": true, "move": true, "copy": true,
	"write": true, "rewrite": true, "patch": true, "merge": true, "split": true,
	"convert": true, "enable": true, "disable": true, "set": true, "reset": true,
	"ajouter": true, "remplacer": true, "corriger": true, "créer": true,
	"supprimer": true, "modifier": true, "renommer": true, "implémenter": true,
	"migrer": true, "configurer": true, "installer": true, "changer": true,
	"déplacer": true, "copier": true, "écrire": true, "réécrire": true,
	"activer": true, "désactiver": true,
}

var explorationWords = map[string]bool{
	"how": true, "where": true, "what": true, "which": true, "who": true,
	"whom": true, "explain": true, "describe": true, "show": true, "list": true,
	"find": true, "search": true, "understand": true, "trace": true, "check": true,
	"compare": true, "analyze": true, "review": true, "structure": true,
	"dependency": true, "module": true, "layer": true, "flow": true,
	"pattern": true, "architecture": true, "overview": true, "summary": true,
	"diagram": true,
	"comment": true, "où": true, "quel": true, "quelle": true, "quels": true,
	"quelles": true, "qui": true, "expliquer": true, "décrire": true,
	"montrer": true, "lister": true, "trouver": true, "chercher": true,
	"comprendre": true, "tracer": true, "vérifier": true, "comparer": true,
	"analyser": true,
}

const wordPunct = ".,;:!?\"'()[]{}"

// ClassifyMode classifies intent as modification or exploration.
// Modification verbs take priority (an "explain how to add X" style
// question is still treated as modification) and exploration is the
// default when nothing matches.
func ClassifyMode(text string) Mode {
	words := strings.Fields(strings.ToLower(text))
	for _, w := range words {
		clean := strings.Trim(w, wordPunct)
		if modificationVerbs[clean] {
			return ModeModification
		}
	}
	for _, w := range words {
		clean := strings.Trim(w, wordPunct)
		if explorationWords[clean] {
			return ModeExploration
		}
	}
	return ModeExploration
}

// SuggestBudget maps a question's character length to a recommended token
// budget — short questions get a tighter budget to avoid intent
// distortion, longer questions are allowed proportionally more context.
func SuggestBudget(questionLength int) int {
	switch {
	case questionLength < 80:
		return 600
	case questionLength < 200:
		return 800
	case questionLength < 400:
		return 1200
	default:
		return 1500
	}
}
