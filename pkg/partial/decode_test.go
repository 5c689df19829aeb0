package partial

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type source struct {
	URL   string `json:"url" required:"true"`
	Title string `json:"title" default:"untitled"`
}

type draft struct {
	Text string `json:"text"`
}

type stats struct {
	Words int     `json:"words"`
	Score float64 `json:"score" default:"0.5"`
}

type answer struct {
	Text       string             `json:"text" required:"true"`
	Language   string             `json:"language" default:"unknown"`
	Confidence float64            `json:"confidence"`
	Tags       []string           `json:"tags"`
	Sources    []source           `json:"sources"`
	Refs       []*source          `json:"refs"`
	ByName     map[string]source  `json:"by_name"`
	Stats      stats              `json:"stats"`
	Draft      *draft             `json:"draft,omitempty"`
	Extra      map[string]any     `json:"extra"`
	Labels     map[string]string  `json:"labels"`
	Grid       [][]int            `json:"grid"`
	Created    time.Time          `json:"created"`
	Limit      *int               `json:"limit" default:"3"`
	Nested     map[string]*source `json:"nested"`
	Ignored    string             `json:"-"`
}

func TestDescriptor_Kinds(t *testing.T) {
	d, err := DescriptorOf[answer]()
	require.NoError(t, err)

	expected := map[string]Kind{
		"text":       KindScalar,
		"language":   KindScalar,
		"confidence": KindScalar,
		"tags":       KindScalarList,
		"sources":    KindObjectList,
		"refs":       KindObjectList,
		"by_name":    KindObjectMap,
		"stats":      KindObject,
		"draft":      KindObject,
		"extra":      KindOpaque,
		"labels":     KindOpaque,
		"grid":       KindOpaque,
		"created":    KindScalar,
		"limit":      KindScalar,
		"nested":     KindObjectMap,
	}
	require.Len(t, d.Fields, len(expected))
	for name, kind := range expected {
		f, ok := d.Field(name)
		require.True(t, ok, name)
		assert.Equal(t, kind, f.Kind, name)
	}

	text, _ := d.Field("text")
	assert.True(t, text.Required)
	lang, _ := d.Field("language")
	assert.True(t, lang.HasDefault())

	again, err := DescriptorOf[*answer]()
	require.NoError(t, err)
	assert.Same(t, d, again)
}

func TestDescriptor_Errors(t *testing.T) {
	_, err := DescriptorOf[int]()
	assert.Error(t, err)

	type badDefault struct {
		N int `json:"n" default:"abc"`
	}
	_, err = DescriptorOf[badDefault]()
	assert.ErrorContains(t, err, "invalid default")
}

func TestDecode_EmptyObject(t *testing.T) {
	out, err := Decode[answer]([]byte(`{}`))
	require.NoError(t, err)

	assert.Equal(t, "", out.Text)
	assert.Equal(t, "unknown", out.Language)
	assert.Zero(t, out.Confidence)
	assert.NotNil(t, out.Tags)
	assert.Empty(t, out.Tags)
	assert.NotNil(t, out.Sources)
	assert.NotNil(t, out.ByName)
	assert.Equal(t, stats{Score: 0.5}, out.Stats)
	assert.Nil(t, out.Draft)
	assert.NotNil(t, out.Extra)
	assert.Empty(t, out.Extra)
	assert.NotNil(t, out.Labels)
	assert.NotNil(t, out.Grid)
	assert.Empty(t, out.Grid)
	assert.NotNil(t, out.Nested)
	require.NotNil(t, out.Limit)
	assert.Equal(t, 3, *out.Limit)
}

func TestDecode_NullCountsAsAbsent(t *testing.T) {
	out, err := Decode[answer]([]byte(`{"language": null, "draft": null, "sources": null}`))
	require.NoError(t, err)
	assert.Equal(t, "unknown", out.Language)
	assert.Nil(t, out.Draft)
	assert.Empty(t, out.Sources)
}

func TestDecode_NestedTolerance(t *testing.T) {
	payload := `{
		"text": "hello",
		"sources": [{"url": "a"}, {}],
		"refs": [null, {"url": "b"}],
		"by_name": {"x": {"url": "c"}},
		"nested": {"y": {}},
		"stats": {"words": 4},
		"draft": {}
	}`
	out, err := Decode[answer]([]byte(payload))
	require.NoError(t, err)

	assert.Equal(t, "hello", out.Text)
	assert.Equal(t, []source{{URL: "a", Title: "untitled"}, {Title: "untitled"}}, out.Sources)
	require.Len(t, out.Refs, 2)
	assert.Nil(t, out.Refs[0])
	assert.Equal(t, &source{URL: "b", Title: "untitled"}, out.Refs[1])
	assert.Equal(t, map[string]source{"x": {URL: "c", Title: "untitled"}}, out.ByName)
	assert.Equal(t, &source{Title: "untitled"}, out.Nested["y"])
	assert.Equal(t, stats{Words: 4, Score: 0.5}, out.Stats)
	assert.Equal(t, &draft{}, out.Draft)
}

func TestDecode_TypeMismatch(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		field   string
		value   string
	}{
		{"scalar", `{"text": 1}`, "text", "1"},
		{"scalar in list", `{"tags": ["a", 2]}`, "tags", `["a", 2]`},
		{"object", `{"stats": "x"}`, "stats", `"x"`},
		{"nested scalar", `{"stats": {"words": "many"}}`, "stats.words", `"many"`},
		{"list of objects", `{"sources": {}}`, "sources", "{}"},
		{"element of list", `{"sources": [{"url": 3}]}`, "sources[0].url", "3"},
		{"map value", `{"by_name": {"k": {"url": false}}}`, "by_name.k.url", "false"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode[answer]([]byte(tt.payload))
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, tt.value, string(verr.Value))
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestDecode_Monotonic(t *testing.T) {
	chunks := []string{
		`{}`,
		`{"text": "The"}`,
		`{"text": "The capital", "sources": [{"url": "x"}]}`,
		`{"text": "The capital is Paris", "sources": [{"url": "x", "title": "Wiki"}], "confidence": 0.9}`,
	}

	var prev answer
	for i, chunk := range chunks {
		out, err := Decode[answer]([]byte(chunk))
		require.NoError(t, err, "chunk %d", i)
		if prev.Text != "" {
			assert.Contains(t, out.Text, prev.Text)
		}
		assert.GreaterOrEqual(t, len(out.Sources), len(prev.Sources))
		prev = out
	}
	assert.Equal(t, "Wiki", prev.Sources[0].Title)
	assert.Equal(t, 0.9, prev.Confidence)
}

func TestDecode_RoundTrip(t *testing.T) {
	limit := 7
	in := answer{
		Text:       "t",
		Language:   "fr",
		Confidence: 0.25,
		Tags:       []string{"a", "b"},
		Sources:    []source{{URL: "u", Title: "T"}},
		Refs:       []*source{{URL: "r", Title: "R"}},
		ByName:     map[string]source{"k": {URL: "v", Title: "V"}},
		Stats:      stats{Words: 3, Score: 1},
		Draft:      &draft{Text: "d"},
		Extra:      map[string]any{"n": 1.5},
		Labels:     map[string]string{"env": "test"},
		Grid:       [][]int{{1, 2}, {3}},
		Created:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Limit:      &limit,
		Nested:     map[string]*source{"n": {URL: "nu", Title: "NT"}},
	}

	raw, err := json.Marshal(in)
	require.NoError(t, err)

	out, err := Decode[answer](raw)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodeStrict(t *testing.T) {
	_, err := DecodeStrict[answer]([]byte(`{"language": "en"}`))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "text", verr.Field)
	assert.Equal(t, "field required", verr.Reason)

	_, err = DecodeStrict[answer]([]byte(`{"text": "x", "sources": [{"title": "no url"}]}`))
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "sources[0].url", verr.Field)

	out, err := DecodeStrict[answer]([]byte(`{"text": "x"}`))
	require.NoError(t, err)
	assert.Equal(t, "x", out.Text)
	assert.Equal(t, "unknown", out.Language)
}

type base struct {
	ID   string `json:"id"`
	Kind string `json:"kind" default:"base"`
}

type Meta struct {
	Note string `json:"note"`
}

type withEmbedded struct {
	base
	*Meta
	Kind string `json:"kind"`
}

func TestDecode_Embedded(t *testing.T) {
	out, err := Decode[withEmbedded]([]byte(`{"id": "1", "note": "hi", "kind": "outer"}`))
	require.NoError(t, err)
	assert.Equal(t, "1", out.ID)
	assert.Equal(t, "outer", out.Kind)
	assert.Empty(t, out.base.Kind)
	require.NotNil(t, out.Meta)
	assert.Equal(t, "hi", out.Note)
}

type node struct {
	Name     string `json:"name"`
	Children []node `json:"children"`
	Parent   *node  `json:"parent"`
}

func TestDecode_Recursive(t *testing.T) {
	out, err := Decode[node]([]byte(`{"name": "root", "children": [{"name": "a", "children": [{}]}], "parent": {"name": "up"}}`))
	require.NoError(t, err)
	assert.Equal(t, "root", out.Name)
	require.Len(t, out.Children, 1)
	assert.Equal(t, "a", out.Children[0].Name)
	require.Len(t, out.Children[0].Children, 1)
	assert.Empty(t, out.Children[0].Children[0].Children)
	assert.Equal(t, "up", out.Parent.Name)
}

func TestDecode_NonStruct(t *testing.T) {
	out, err := Decode[map[string]any]([]byte(`{"a": 1}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1.0}, out)

	_, err = Decode[map[string]int]([]byte(`{"a": "x"}`))
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestDecode_PointerTarget(t *testing.T) {
	out, err := Decode[*source]([]byte(`{"url": "x"}`))
	require.NoError(t, err)
	assert.Equal(t, &source{URL: "x", Title: "untitled"}, out)
}

func TestInto_InvalidTarget(t *testing.T) {
	assert.Error(t, Into([]byte(`{}`), source{}))
	var nilPtr *source
	assert.Error(t, Into([]byte(`{}`), nilPtr))
}
