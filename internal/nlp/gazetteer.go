package nlp

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed data/gazetteer.yaml
var defaultGazetteerYAML []byte

// Gazetteer holds the phrase lists the rule recognizer matches against.
type Gazetteer struct {
	Entities    map[string][]string `yaml:"entities"`
	FirstNames  []string            `yaml:"first_names"`
	Titles      []string            `yaml:"titles"`
	OrgSuffixes []string            `yaml:"org_suffixes"`
}

type phrase struct {
	tokens []string
	label  string
}

// gazetteerIndex maps a phrase's first token to its phrases, longest first.
type gazetteerIndex struct {
	byFirst     map[string][]phrase
	firstNames  map[string]bool
	titles      map[string]bool
	orgSuffixes map[string]bool
	labels      []string
}

// DefaultGazetteer parses the embedded gazetteer.
func DefaultGazetteer() (*Gazetteer, error) {
	return parseGazetteer(defaultGazetteerYAML)
}

// LoadGazetteer reads a gazetteer YAML file. An empty path yields the default.
func LoadGazetteer(path string) (*Gazetteer, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultGazetteer()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read gazetteer: %w", err)
	}
	return parseGazetteer(data)
}

func parseGazetteer(data []byte) (*Gazetteer, error) {
	var g Gazetteer
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("decode gazetteer: %w", err)
	}
	return &g, nil
}

func (g *Gazetteer) index() *gazetteerIndex {
	idx := &gazetteerIndex{
		byFirst:     map[string][]phrase{},
		firstNames:  toSet(g.FirstNames),
		titles:      toSet(g.Titles),
		orgSuffixes: toSet(g.OrgSuffixes),
	}
	for label, phrases := range g.Entities {
		label = strings.ToUpper(strings.TrimSpace(label))
		if label == "" {
			continue
		}
		idx.labels = append(idx.labels, label)
		for _, p := range phrases {
			var toks []string
			for _, t := range Tokenize(strings.TrimSpace(p)) {
				if !t.IsSpace {
					toks = append(toks, t.Text)
				}
			}
			if len(toks) == 0 {
				continue
			}
			idx.byFirst[toks[0]] = append(idx.byFirst[toks[0]], phrase{tokens: toks, label: label})
		}
	}
	for first := range idx.byFirst {
		list := idx.byFirst[first]
		sort.SliceStable(list, func(i, j int) bool { return len(list[i].tokens) > len(list[j].tokens) })
	}
	sort.Strings(idx.labels)
	return idx
}

// match returns the longest phrase starting at words[i].
func (idx *gazetteerIndex) match(words []Token, i int) (phrase, bool) {
	for _, p := range idx.byFirst[words[i].Text] {
		if i+len(p.tokens) > len(words) {
			continue
		}
		ok := true
		for k, t := range p.tokens {
			if words[i+k].Text != t {
				ok = false
				break
			}
		}
		if ok {
			return p, true
		}
	}
	return phrase{}, false
}

func toSet(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			m[it] = true
		}
	}
	return m
}
