package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// The JSON form follows the contract document layout:
//
//	{
//	  "body":   {"$.items": {"matchers": [{"match": "type", "min": 1}], "combine": "AND"}},
//	  "header": {"Content-Type": {"matchers": [{"match": "regex", "regex": "application/json.*"}]}},
//	  "path":   {"matchers": [{"match": "regex", "regex": "/orders/\\d+"}]}
//	}
//
// A category may hold a bare rule list instead of a map of keys, which is
// read as rules on the root.

type ruleListJSON struct {
	Matchers []ruleJSON `json:"matchers"`
	Combine  string     `json:"combine,omitempty"`
}

type ruleJSON struct {
	Match     string          `json:"match,omitempty"`
	Regex     string          `json:"regex,omitempty"`
	Min       *int            `json:"min,omitempty"`
	Max       *int            `json:"max,omitempty"`
	Value     any             `json:"value,omitempty"`
	Format    string          `json:"format,omitempty"`
	Date      string          `json:"date,omitempty"`
	Time      string          `json:"time,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	Range     string          `json:"range,omitempty"`
	Status    json.RawMessage `json:"status,omitempty"`
	Variants  []variantJSON   `json:"variants,omitempty"`
	Rules     []ruleJSON      `json:"rules,omitempty"`
}

type variantJSON struct {
	Index int                     `json:"index"`
	Rules map[string]ruleListJSON `json:"rules,omitempty"`
}

// MarshalJSON encodes the rules by category.
func (m *MatchingRules) MarshalJSON() ([]byte, error) {
	out := make(map[string]map[string]ruleListJSON)
	if m != nil {
		for cat, set := range m.sets {
			if set.Len() == 0 {
				continue
			}
			out[string(cat)] = set.toJSON()
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes rules, validating every rule as it is added.
func (m *MatchingRules) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.sets = make(map[Category]*RuleSet)

	for _, name := range slices.Sorted(maps.Keys(raw)) {
		cat := Category(name)
		if !slices.Contains(Categories(), cat) {
			return fmt.Errorf("unknown matching rule category %q", name)
		}

		var bare ruleListJSON
		if err := json.Unmarshal(raw[name], &bare); err == nil && bare.Matchers != nil {
			if err := m.addJSON(cat, "", bare); err != nil {
				return err
			}
			continue
		}

		var keyed orderedLists
		if err := json.Unmarshal(raw[name], &keyed); err != nil {
			return fmt.Errorf("category %s: %w", name, err)
		}
		for _, kv := range keyed {
			if err := m.addJSON(cat, kv.key, kv.list); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *MatchingRules) addJSON(cat Category, key string, l ruleListJSON) error {
	rules, logic, err := l.decode()
	if err != nil {
		return fmt.Errorf("%s rule %q: %w", cat, key, err)
	}
	return m.Add(cat, key, logic, rules...)
}

// MarshalJSON encodes a rule set keyed by pattern.
func (s *RuleSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.toJSON())
}

// UnmarshalJSON decodes a rule set keyed by pattern.
func (s *RuleSet) UnmarshalJSON(data []byte) error {
	var keyed orderedLists
	if err := json.Unmarshal(data, &keyed); err != nil {
		return err
	}
	s.entries = nil
	for _, kv := range keyed {
		rules, logic, err := kv.list.decode()
		if err != nil {
			return fmt.Errorf("rule %q: %w", kv.key, err)
		}
		if err := s.Add(kv.key, logic, rules...); err != nil {
			return err
		}
	}
	return nil
}

func (s *RuleSet) toJSON() map[string]ruleListJSON {
	out := make(map[string]ruleListJSON, s.Len())
	if s == nil {
		return out
	}
	for _, e := range s.entries {
		l := ruleListJSON{Combine: string(e.list.Logic)}
		for _, r := range e.list.Rules {
			l.Matchers = append(l.Matchers, r.toJSON())
		}
		out[e.expr] = l
	}
	return out
}

// MarshalJSON encodes a single rule.
func (r Rule) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.toJSON())
}

// UnmarshalJSON decodes a single rule.
func (r *Rule) UnmarshalJSON(data []byte) error {
	var rj ruleJSON
	if err := json.Unmarshal(data, &rj); err != nil {
		return err
	}
	decoded, err := rj.decode()
	if err != nil {
		return err
	}
	*r = decoded
	return nil
}

func (l ruleListJSON) decode() ([]Rule, Logic, error) {
	logic := Logic(strings.ToUpper(l.Combine))
	if logic == "" {
		logic = And
	}
	rules := make([]Rule, 0, len(l.Matchers))
	for _, rj := range l.Matchers {
		r, err := rj.decode()
		if err != nil {
			return nil, "", err
		}
		rules = append(rules, r)
	}
	return rules, logic, nil
}

func (r Rule) toJSON() ruleJSON {
	rj := ruleJSON{Match: string(r.Kind)}
	switch r.Kind {
	case KindRegex:
		rj.Regex = r.Regex
	case KindMinType:
		rj.Match, rj.Min = string(KindType), &r.Min
	case KindMaxType:
		rj.Match, rj.Max = string(KindType), &r.Max
	case KindMinMaxType:
		rj.Match, rj.Min, rj.Max = string(KindType), &r.Min, &r.Max
	case KindInclude:
		rj.Value = r.Value
	case KindSemver:
		rj.Range = r.Range
	case KindDate, KindTime, KindTimestamp:
		rj.Format = r.Format
	case KindContentType:
		rj.Value = r.ContentType
	case KindStatusCode:
		if r.Status == StatusCodeList {
			rj.Status, _ = json.Marshal(r.Codes)
		} else {
			rj.Status, _ = json.Marshal(string(r.Status))
		}
	case KindArrayContains:
		for _, v := range r.Variants {
			rj.Variants = append(rj.Variants, variantJSON{Index: v.Index, Rules: v.Rules.toJSON()})
		}
	case KindEachKey, KindEachValue:
		for _, n := range r.Nested {
			rj.Rules = append(rj.Rules, n.toJSON())
		}
	}
	return rj
}

func (rj ruleJSON) decode() (Rule, error) {
	kind := Kind(rj.Match)
	if kind == "" || kind == KindType {
		switch {
		case rj.Min != nil && rj.Max != nil:
			return MinMaxType(*rj.Min, *rj.Max), nil
		case rj.Min != nil:
			return MinType(*rj.Min), nil
		case rj.Max != nil:
			return MaxType(*rj.Max), nil
		case kind == "":
			return Rule{}, errors.New("matcher has no match kind")
		}
		return Type(), nil
	}

	switch kind {
	case KindRegex:
		return Regex(rj.Regex), nil
	case KindInclude:
		return Include(rj.Value), nil
	case KindSemver:
		return SemverRange(rj.Range), nil
	case KindDate:
		return Date(firstNonEmpty(rj.Format, rj.Date)), nil
	case KindTime:
		return Time(firstNonEmpty(rj.Format, rj.Time)), nil
	case KindTimestamp:
		return Timestamp(firstNonEmpty(rj.Format, rj.Timestamp)), nil
	case KindContentType:
		ct, _ := rj.Value.(string)
		return ContentType(ct), nil
	case KindStatusCode:
		var class string
		if err := json.Unmarshal(rj.Status, &class); err == nil {
			return StatusCode(StatusClass(class)), nil
		}
		var codes []int
		if err := json.Unmarshal(rj.Status, &codes); err != nil {
			return Rule{}, fmt.Errorf("statusCode: status must be a class name or a list of codes: %w", err)
		}
		return StatusCodes(codes...), nil
	case KindArrayContains:
		variants := make([]Variant, 0, len(rj.Variants))
		for _, vj := range rj.Variants {
			set := NewRuleSet()
			for _, pattern := range slices.Sorted(maps.Keys(vj.Rules)) {
				rules, logic, err := vj.Rules[pattern].decode()
				if err != nil {
					return Rule{}, err
				}
				if err := set.Add(pattern, logic, rules...); err != nil {
					return Rule{}, err
				}
			}
			variants = append(variants, Variant{Index: vj.Index, Rules: set})
		}
		return ArrayContains(variants...), nil
	case KindEachKey, KindEachValue:
		nested := make([]Rule, 0, len(rj.Rules))
		for _, n := range rj.Rules {
			r, err := n.decode()
			if err != nil {
				return Rule{}, err
			}
			nested = append(nested, r)
		}
		return Rule{Kind: kind, Nested: nested}, nil
	}
	return Rule{Kind: kind}, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// orderedLists decodes a JSON object of rule lists keeping key order, so
// that declaration order (the tie-breaker for equally specific patterns) is
// the order of the document.
type orderedLists []struct {
	key  string
	list ruleListJSON
}

func (o *orderedLists) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("expected an object of rule lists")
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, _ := tok.(string)
		var l ruleListJSON
		if err := dec.Decode(&l); err != nil {
			return fmt.Errorf("rule %q: %w", key, err)
		}
		*o = append(*o, struct {
			key  string
			list ruleListJSON
		}{key, l})
	}
	_, err = dec.Token()
	return err
}
