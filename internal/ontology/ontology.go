// Package ontology loads term names and namespaces from an OBO file. It does
// no graph reasoning: is_a and relationship lines are ignored.
package ontology

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Namespace short names used in output headers.
const (
	BP = "BP"
	MF = "MF"
	CC = "CC"
)

// Namespaces lists the short names in output order.
var Namespaces = []string{BP, MF, CC}

var shortNames = map[string]string{
	"biological_process": BP,
	"molecular_function": MF,
	"cellular_component": CC,
}

// Term is one ontology entry.
type Term struct {
	ID        string
	Name      string
	Namespace string
	AltIDs    []string
}

// Short returns the namespace short name, or "" for namespaces outside
// BP/MF/CC.
func (t *Term) Short() string { return shortNames[t.Namespace] }

// Ontology indexes terms by primary and alternate ID.
type Ontology struct {
	terms map[string]*Term
	count int
}

// Load reads an OBO file from disk.
func Load(path string) (*Ontology, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening ontology: %w", err)
	}
	defer f.Close()
	o, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return o, nil
}

// Parse reads OBO [Term] stanzas. Obsolete terms are skipped.
func Parse(r io.Reader) (*Ontology, error) {
	o := &Ontology{terms: map[string]*Term{}}

	var (
		cur      *Term
		obsolete bool
		inTerm   bool
	)
	flush := func() {
		if cur != nil && cur.ID != "" && !obsolete {
			o.terms[cur.ID] = cur
			for _, alt := range cur.AltIDs {
				if _, taken := o.terms[alt]; !taken {
					o.terms[alt] = cur
				}
			}
			o.count++
		}
		cur, obsolete = nil, false
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "!") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			flush()
			inTerm = line == "[Term]"
			if inTerm {
				cur = &Term{}
			}
			continue
		}
		if !inTerm {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = stripComment(strings.TrimSpace(value))
		switch strings.TrimSpace(key) {
		case "id":
			cur.ID = value
		case "name":
			cur.Name = value
		case "namespace":
			cur.Namespace = value
		case "alt_id":
			cur.AltIDs = append(cur.AltIDs, value)
		case "is_obsolete":
			obsolete = value == "true"
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	flush()
	return o, nil
}

func stripComment(v string) string {
	if i := strings.Index(v, " !"); i >= 0 {
		return strings.TrimSpace(v[:i])
	}
	return v
}

// Lookup returns the term for id, following alternate IDs.
func (o *Ontology) Lookup(id string) (*Term, bool) {
	if o == nil {
		return nil, false
	}
	t, ok := o.terms[strings.TrimSpace(id)]
	return t, ok
}

// Len returns the number of loaded (non-obsolete) terms.
func (o *Ontology) Len() int { return o.count }
