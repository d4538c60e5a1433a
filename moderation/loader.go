package moderation

import (
	"bufio"
	"bytes"
	"group-cart/errors"
	"io/fs"
	"path"
	"slices"
	"strings"
)

// CensoredData carries the loaded dictionary and the languages it came from.
type CensoredData struct {
	Words     []string
	Languages []string
}

// CensoredLoader reads blacklisted words from a directory of .txt files, one word per line.
type CensoredLoader struct {
	fs fs.FS
}

func NewCensoredLoader(f fs.FS) *CensoredLoader {
	return &CensoredLoader{fs: f}
}

// LoadAll parses every .txt file of dir. The file name is the language, e.g. "fr.txt".
func (l *CensoredLoader) LoadAll(dir string) (CensoredData, error) {
	entries, err := fs.ReadDir(l.fs, dir)
	if err != nil {
		return CensoredData{}, err
	}

	var languages []string
	uniqueWords := make(map[string]struct{})
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		languages = append(languages, strings.TrimSuffix(entry.Name(), ".txt"))

		data, err := fs.ReadFile(l.fs, path.Join(dir, entry.Name()))
		if err != nil {
			return CensoredData{}, err
		}
		// Scanner handles both \n and \r\n
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				uniqueWords[line] = struct{}{}
			}
		}
		if err := scanner.Err(); err != nil {
			return CensoredData{}, err
		}
	}

	if len(uniqueWords) == 0 {
		return CensoredData{}, errors.ErrEmptyWords
	}
	words := make([]string, 0, len(uniqueWords))
	for w := range uniqueWords {
		words = append(words, w)
	}
	slices.Sort(words)
	return CensoredData{Words: words, Languages: languages}, nil
}
