package body

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"slices"

	"github.com/getmockd/contractd/pkg/contract"
	"github.com/getmockd/contractd/pkg/mismatch"
	"github.com/getmockd/contractd/pkg/pathexp"
)

// MultipartMatcher compares multipart bodies part by part. Parts are keyed
// by their form name and each part body is compared with the matcher for
// its own content type, rooted at $.name.
type MultipartMatcher struct{}

type part struct {
	name        string
	filename    string
	contentType string
	content     []byte
}

// Compare implements Matcher.
func (MultipartMatcher) Compare(ctx *Context, root pathexp.Path, expected, actual contract.Body) []mismatch.Mismatch {
	eparts, err := readParts(expected)
	if err != nil {
		return []mismatch.Mismatch{(&DecodeError{ContentType: expected.ContentType, Side: "expected", Err: err}).mismatch(root)}
	}
	aparts, err := readParts(actual)
	if err != nil {
		return []mismatch.Mismatch{(&DecodeError{ContentType: actual.ContentType, Side: "actual", Err: err}).mismatch(root)}
	}

	registry := ctx.Registry
	if registry == nil {
		registry = Default
	}

	eg, order := groupParts(eparts)
	ag, aorder := groupParts(aparts)

	var out []mismatch.Mismatch
	for _, name := range order {
		path := root.Child(name)
		want, got := eg[name], ag[name]
		if len(got) == 0 {
			out = append(out, mismatch.New(mismatch.KindMissingKey, path.String(), mismatch.Absent, mismatch.Absent,
				"Expected a part named %q but it was missing", name))
			continue
		}
		if len(want) != len(got) {
			out = append(out, mismatch.New(mismatch.KindValue, path.String(), len(want), len(got),
				"Expected %d part(s) named %q but received %d", len(want), name, len(got)))
		}
		for i := range min(len(want), len(got)) {
			ppath := path
			if len(want) > 1 {
				ppath = path.Index(i)
			}
			out = append(out, comparePart(ctx, registry, ppath, want[i], got[i])...)
		}
	}
	if ctx.Options.NoUnexpectedKeys {
		for _, name := range aorder {
			if _, ok := eg[name]; !ok {
				out = append(out, mismatch.New(mismatch.KindUnexpectedKey, root.Child(name).String(),
					mismatch.Absent, mismatch.Absent, "Unexpected part named %q", name))
			}
		}
	}
	return out
}

func comparePart(ctx *Context, registry *Registry, path pathexp.Path, want, got part) []mismatch.Mismatch {
	if want.filename != "" && want.filename != got.filename {
		return []mismatch.Mismatch{mismatch.New(mismatch.KindValue, path.String(), want.filename, got.filename,
			"Expected part %q to have filename %q but received %q", want.name, want.filename, got.filename)}
	}

	wf, matcher := registry.Lookup(want.contentType)
	gf, _ := registry.Lookup(got.contentType)
	if wf != gf || (!wf.structured() && BaseType(want.contentType) != BaseType(got.contentType)) {
		return []mismatch.Mismatch{mismatch.New(mismatch.KindBodyType, path.String(),
			BaseType(want.contentType), BaseType(got.contentType),
			"Expected part %q of type %s but received %s", want.name, BaseType(want.contentType), BaseType(got.contentType))}
	}

	eb := contract.Body{State: contract.BodyPresent, Content: want.content, ContentType: want.contentType}
	ab := contract.Body{State: contract.BodyPresent, Content: got.content, ContentType: got.contentType}
	if len(want.content) == 0 {
		eb.State = contract.BodyEmpty
	}
	if len(got.content) == 0 {
		ab.State = contract.BodyEmpty
	}
	if eb.State != ab.State {
		return []mismatch.Mismatch{mismatch.New(mismatch.KindValue, path.String(), want.content, got.content,
			"Expected part %q to have %d bytes but received %d", want.name, len(want.content), len(got.content))}
	}
	if eb.State == contract.BodyEmpty {
		return nil
	}
	return matcher.Compare(ctx, path, eb, ab)
}

func readParts(b contract.Body) ([]part, error) {
	_, params, err := mime.ParseMediaType(b.ContentType)
	if err != nil {
		return nil, err
	}
	boundary := params["boundary"]
	if boundary == "" {
		return nil, errors.New("multipart content type has no boundary")
	}

	r := multipart.NewReader(bytes.NewReader(b.Content), boundary)
	var parts []part
	for {
		p, err := r.NextPart()
		if errors.Is(err, io.EOF) {
			return parts, nil
		}
		if err != nil {
			return nil, err
		}
		content, err := io.ReadAll(p)
		if err != nil {
			return nil, err
		}
		ct := p.Header.Get("Content-Type")
		if ct == "" {
			if p.FileName() != "" {
				ct = DetectContentType(content)
			} else {
				ct = "text/plain"
			}
		}
		parts = append(parts, part{
			name:        p.FormName(),
			filename:    p.FileName(),
			contentType: ct,
			content:     content,
		})
	}
}

func groupParts(parts []part) (map[string][]part, []string) {
	groups := make(map[string][]part)
	var order []string
	for _, p := range parts {
		if !slices.Contains(order, p.name) {
			order = append(order, p.name)
		}
		groups[p.name] = append(groups[p.name], p)
	}
	return groups, order
}
