package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

type labelMeta struct {
	Labels            []string
	NumLabels         int
	ID2Label          map[int]string
	Label2ID          map[string]int
	RequiresTokenType bool
}

// loadLabelMeta reads labels from config.json and, when present,
// label_map.json (a list or an index map). label_map.json wins.
func loadLabelMeta(dir string) (labelMeta, error) {
	meta := labelMeta{}
	configPath := filepath.Join(dir, "config.json")
	if data, err := os.ReadFile(configPath); err == nil {
		var cfg struct {
			NumLabels     int               `json:"num_labels"`
			ID2Label      map[string]string `json:"id2label"`
			Label2ID      map[string]int    `json:"label2id"`
			TypeVocabSize int               `json:"type_vocab_size"`
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return meta, fmt.Errorf("decode config.json: %w", err)
		}
		meta.NumLabels = cfg.NumLabels
		meta.ID2Label = labelsMapFromID(cfg.ID2Label)
		meta.Label2ID = cfg.Label2ID
		meta.Labels = labelsFromIDMap(meta.ID2Label)
		meta.RequiresTokenType = cfg.TypeVocabSize > 0
	}

	labelPath := filepath.Join(dir, "label_map.json")
	if data, err := os.ReadFile(labelPath); err == nil {
		var list []string
		if err := json.Unmarshal(data, &list); err == nil && len(list) > 0 {
			meta.Labels = list
			meta.NumLabels = len(list)
		} else {
			var idMap map[string]string
			if err := json.Unmarshal(data, &idMap); err != nil {
				return meta, fmt.Errorf("decode label_map.json: %w", err)
			}
			meta.ID2Label = labelsMapFromID(idMap)
			meta.Labels = labelsFromIDMap(meta.ID2Label)
			meta.NumLabels = len(meta.Labels)
		}
	}

	if len(meta.ID2Label) == 0 && len(meta.Label2ID) > 0 {
		meta.ID2Label = make(map[int]string, len(meta.Label2ID))
		for lbl, id := range meta.Label2ID {
			meta.ID2Label[id] = lbl
		}
	}
	if len(meta.Labels) == 0 && len(meta.ID2Label) > 0 {
		meta.Labels = labelsFromIDMap(meta.ID2Label)
	}
	if meta.NumLabels <= 0 {
		meta.NumLabels = len(meta.Labels)
	}
	return meta, nil
}

func labelsFromIDMap(id2label map[int]string) []string {
	if len(id2label) == 0 {
		return nil
	}
	maxID := -1
	for id := range id2label {
		if id > maxID {
			maxID = id
		}
	}
	if maxID < 0 {
		return nil
	}
	labels := make([]string, maxID+1)
	for id, lbl := range id2label {
		if id >= 0 {
			labels[id] = lbl
		}
	}
	return labels
}

func labelsMapFromID(raw map[string]string) map[int]string {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[int]string, len(raw))
	for k, v := range raw {
		id, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil || id < 0 {
			continue
		}
		out[id] = v
	}
	return out
}

func splitLabel(lbl string) (string, string) {
	lbl = strings.TrimSpace(lbl)
	if lbl == "" {
		return "", ""
	}
	parts := strings.SplitN(lbl, "-", 2)
	if len(parts) == 1 {
		return "", lbl
	}
	return strings.ToUpper(parts[0]), parts[1]
}

// entityLabel maps model label types onto the application label set.
func entityLabel(typ string) string {
	switch t := strings.ToUpper(strings.TrimSpace(typ)); t {
	case "PER", "PERSON":
		return "PERSON"
	case "LOC", "LOCATION":
		return "LOC"
	case "ORG", "ORGANIZATION", "ORGANISATION":
		return "ORG"
	case "MISC":
		return "MISC"
	default:
		return t
	}
}

// entityLabels returns the distinct mapped entity types of a BIO label list.
func entityLabels(labels []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, lbl := range labels {
		_, typ := splitLabel(lbl)
		if typ == "" || strings.EqualFold(lbl, "O") {
			continue
		}
		mapped := entityLabel(typ)
		if !seen[mapped] {
			seen[mapped] = true
			out = append(out, mapped)
		}
	}
	sort.Strings(out)
	return out
}
