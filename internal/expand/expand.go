// Package expand turns a prompt/title template pair and a variable table into
// the concrete variants executed on each firing.
//
// Placeholders use the {{name}} syntax; the captured name is used verbatim as
// the lookup key (no trimming). Only "active" variables, i.e. names referenced
// by at least one template and declared in the table, enter the product.
package expand

import "regexp"

var placeholderRe = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// Variant is one concrete substitution of a schedule's templates.
type Variant struct {
	Prompt string
	Title  string
	Values map[string]string
}

// Placeholders returns the placeholder names referenced by s, in order of
// first appearance, without duplicates.
func Placeholders(s string) []string {
	matches := placeholderRe.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		name := m[1]
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// Active returns the active variable names for the template pair: names from
// prompt first, then names only the title references, filtered to those
// declared in vars.
func Active(prompt, title string, vars map[string][]string) []string {
	names := Placeholders(prompt)
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		seen[n] = struct{}{}
	}
	for _, n := range Placeholders(title) {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		names = append(names, n)
	}

	out := names[:0]
	for _, n := range names {
		if _, ok := vars[n]; ok {
			out = append(out, n)
		}
	}
	return out
}

// Count returns the number of variants Expand would produce.
func Count(prompt, title string, vars map[string][]string) int {
	n := 1
	for _, name := range Active(prompt, title, vars) {
		n *= len(vars[name])
		if n == 0 {
			return 0
		}
	}
	return n
}

// Expand computes the cartesian product over the active variables (the last
// active variable varies fastest) and substitutes each point independently
// into prompt and title. A template is only rewritten for names it
// references itself.
//
// With no active variables the result is a single variant carrying the
// templates unchanged. If any active variable has no values the result is
// empty.
func Expand(prompt, title string, vars map[string][]string) []Variant {
	active := Active(prompt, title, vars)
	if len(active) == 0 {
		return []Variant{{Prompt: prompt, Title: title, Values: map[string]string{}}}
	}

	total := Count(prompt, title, vars)
	if total == 0 {
		return nil
	}

	inPrompt := nameSet(Placeholders(prompt))
	inTitle := nameSet(Placeholders(title))

	out := make([]Variant, 0, total)
	idx := make([]int, len(active))
	for {
		values := make(map[string]string, len(active))
		for i, name := range active {
			values[name] = vars[name][idx[i]]
		}
		out = append(out, Variant{
			Prompt: substitute(prompt, values, inPrompt),
			Title:  substitute(title, values, inTitle),
			Values: values,
		})

		// odometer increment, rightmost first
		i := len(active) - 1
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(vars[active[i]]) {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			return out
		}
	}
}

func substitute(tmpl string, values map[string]string, refs map[string]struct{}) string {
	if len(refs) == 0 {
		return tmpl
	}
	return placeholderRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := m[2 : len(m)-2]
		if _, ok := refs[name]; !ok {
			return m
		}
		v, ok := values[name]
		if !ok {
			return m
		}
		return v
	})
}

func nameSet(names []string) map[string]struct{} {
	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out
}
