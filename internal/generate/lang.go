package generate

import (
	"fmt"
	"strings"

	"github.com/gvmoraes79/FabricaEbook/internal/layout"
)

// Language is the output language named in prompts.
type Language string

const (
	Portuguese Language = "Português"
	English    Language = "English"
	Spanish    Language = "Español"
	French     Language = "Français"
	Italian    Language = "Italiano"

	DefaultLanguage = Portuguese
)

// Labels are the fixed strings a book needs in its own language.
type Labels struct {
	Introduction  string
	Conclusion    string
	Contents      string
	References    string
	CoverSubtitle string
}

var labels = map[Language]Labels{
	Portuguese: {"Introdução", "Conclusão", "Sumário", "Referências", "Guia Completo"},
	English:    {"Introduction", "Conclusion", "Contents", "References", "Complete Guide"},
	Spanish:    {"Introducción", "Conclusión", "Índice", "Referencias", "Guía Completa"},
	French:     {"Introduction", "Conclusion", "Sommaire", "Références", "Guide Complet"},
	Italian:    {"Introduzione", "Conclusione", "Indice", "Riferimenti", "Guida Completa"},
}

// Languages lists the supported languages in display order.
func Languages() []Language {
	return []Language{Portuguese, English, Spanish, French, Italian}
}

// ParseLanguage accepts a display name or a two-letter code, case-insensitively.
// An empty string selects the default language.
func ParseLanguage(s string) (Language, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultLanguage, nil
	}
	codes := map[string]Language{"pt": Portuguese, "en": English, "es": Spanish, "fr": French, "it": Italian}
	if l, ok := codes[strings.ToLower(s)]; ok {
		return l, nil
	}
	for _, l := range Languages() {
		if strings.EqualFold(string(l), s) {
			return l, nil
		}
	}
	return "", fmt.Errorf("unsupported language %q", s)
}

func (l Language) Labels() Labels {
	if lb, ok := labels[l]; ok {
		return lb
	}
	return labels[DefaultLanguage]
}

// Localize returns p with its visible titles in language l.
func (l Language) Localize(p layout.Policy) layout.Policy {
	lb := l.Labels()
	p.TOCTitle = lb.Contents
	p.ReferencesTitle = lb.References
	p.CoverSubtitle = lb.CoverSubtitle
	return p
}

// Style selects how enhance mode rewrites a chapter.
type Style string

const (
	AsIs         Style = "AsIs"
	MoreFormal   Style = "MoreFormal"
	MoreCasual   Style = "MoreCasual"
	MoreDidactic Style = "MoreDidactic"
)

func ParseStyle(s string) (Style, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return AsIs, nil
	}
	for _, st := range []Style{AsIs, MoreFormal, MoreCasual, MoreDidactic} {
		if strings.EqualFold(string(st), s) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unsupported style %q", s)
}
