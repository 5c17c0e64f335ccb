package main

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/aquilax/treeboard/log"
	"gopkg.in/yaml.v3"
)

type Translations map[string]string

type Language struct {
	found bool
	tr    Translations
}

// TransPool lazily loads <basePath>/<lang>.yaml files.
type TransPool struct {
	basePath  string
	mu        sync.Mutex
	languages map[string]*Language
}

func NewTransPool(basePath string) *TransPool {
	return &TransPool{
		basePath:  basePath,
		languages: make(map[string]*Language),
	}
}

func NewLanguage(basePath, lang string) *Language {
	l := &Language{
		found: false,
		tr:    make(Translations),
	}
	if basePath == "" || lang == "" {
		return l
	}
	data, err := os.ReadFile(filepath.Join(basePath, filepath.Base(lang)+".yaml"))
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn.Printf("translations: %v", err)
		}
		return l
	}
	if err := yaml.Unmarshal(data, &l.tr); err != nil {
		log.Warn.Printf("translations: %s: %v", lang, err)
		return l
	}
	l.found = true
	return l
}

func (tp *TransPool) Get(lang string) *Language {
	tp.mu.Lock()
	defer tp.mu.Unlock()
	l, ok := tp.languages[lang]
	if !ok {
		l = NewLanguage(tp.basePath, lang)
		tp.languages[lang] = l
	}
	return l
}

func (l *Language) Lang(text string) string {
	if l == nil || !l.found {
		// Language was not found, return the string
		return text
	}
	res, ok := l.tr[text]
	if !ok || res == "" {
		// Key was not found
		return text
	}
	// Return translated string
	return res
}
