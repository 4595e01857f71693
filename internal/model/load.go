package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Load reads a model descriptor. The format is picked from the file
// extension; anything that is not .json is read as YAML.
func Load(path string) (*Sequential, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model %s: %w", path, err)
	}
	format := FormatYAML
	if strings.EqualFold(filepath.Ext(path), ".json") {
		format = FormatJSON
	}
	m, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("parse model %s: %w", path, err)
	}
	if m.ModelName == "" {
		m.ModelName = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return m, nil
}

func Parse(data []byte, format Format) (*Sequential, error) {
	switch format {
	case FormatJSON:
		return parseJSON(data)
	case FormatYAML, "":
		return parseYAML(data)
	default:
		return nil, fmt.Errorf("unsupported model format %q", format)
	}
}

type yamlModel struct {
	Name               string      `yaml:"name"`
	TrainableParams    *int64      `yaml:"trainable_params"`
	NonTrainableParams *int64      `yaml:"non_trainable_params"`
	Layers             []yamlLayer `yaml:"layers"`
}

type yamlLayer struct {
	Name               string    `yaml:"name"`
	Kind               string    `yaml:"kind"`
	OutputShape        yaml.Node `yaml:"output_shape"`
	TrainableParams    int64     `yaml:"trainable_params"`
	NonTrainableParams int64     `yaml:"non_trainable_params"`
}

func parseYAML(data []byte) (*Sequential, error) {
	var doc yamlModel
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	m := &Sequential{
		ModelName:    doc.Name,
		Trainable:    doc.TrainableParams,
		NonTrainable: doc.NonTrainableParams,
	}
	for i, l := range doc.Layers {
		out, err := yamlOutputShape(&l.OutputShape)
		if err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", i, l.Name, err)
		}
		m.LayerList = append(m.LayerList, Layer{
			Name:               l.Name,
			Kind:               l.Kind,
			Output:             out,
			TrainableParams:    l.TrainableParams,
			NonTrainableParams: l.NonTrainableParams,
		})
	}
	return m, nil
}

func yamlOutputShape(n *yaml.Node) (OutputShape, error) {
	if n.Kind != yaml.SequenceNode || len(n.Content) == 0 {
		return nil, ErrMalformedShape
	}
	if n.Content[0].Kind == yaml.SequenceNode {
		shapes := make([]Shape, 0, len(n.Content))
		for _, c := range n.Content {
			s, err := yamlShape(c)
			if err != nil {
				return nil, err
			}
			shapes = append(shapes, s)
		}
		return MultiOutput{Shapes: shapes}, nil
	}
	s, err := yamlShape(n)
	if err != nil {
		return nil, err
	}
	return SingleOutput{Shape: s}, nil
}

func yamlShape(n *yaml.Node) (Shape, error) {
	if n.Kind != yaml.SequenceNode {
		return nil, ErrMalformedShape
	}
	s := make(Shape, 0, len(n.Content))
	for _, c := range n.Content {
		if c.Kind != yaml.ScalarNode {
			return nil, ErrMalformedShape
		}
		if c.Tag == "!!null" {
			s = append(s, Unknown())
			continue
		}
		size, err := strconv.Atoi(c.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: dim %q", ErrMalformedShape, c.Value)
		}
		s = append(s, Known(size))
	}
	return s, nil
}

func parseJSON(data []byte) (*Sequential, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid json")
	}
	doc := gjson.ParseBytes(data)
	m := &Sequential{ModelName: doc.Get("name").String()}
	if v := doc.Get("trainable_params"); v.Exists() {
		n := v.Int()
		m.Trainable = &n
	}
	if v := doc.Get("non_trainable_params"); v.Exists() {
		n := v.Int()
		m.NonTrainable = &n
	}

	var perr error
	doc.Get("layers").ForEach(func(i, l gjson.Result) bool {
		name := l.Get("name").String()
		out, err := jsonOutputShape(l.Get("output_shape"))
		if err != nil {
			perr = fmt.Errorf("layer %d (%s): %w", i.Int(), name, err)
			return false
		}
		kind := l.Get("kind").String()
		if kind == "" {
			kind = l.Get("class_name").String()
		}
		m.LayerList = append(m.LayerList, Layer{
			Name:               name,
			Kind:               kind,
			Output:             out,
			TrainableParams:    l.Get("trainable_params").Int(),
			NonTrainableParams: l.Get("non_trainable_params").Int(),
		})
		return true
	})
	if perr != nil {
		return nil, perr
	}
	return m, nil
}

func jsonOutputShape(r gjson.Result) (OutputShape, error) {
	if !r.IsArray() {
		return nil, ErrMalformedShape
	}
	elems := r.Array()
	if len(elems) == 0 {
		return nil, ErrMalformedShape
	}
	if elems[0].IsArray() {
		shapes := make([]Shape, 0, len(elems))
		for _, e := range elems {
			s, err := jsonShape(e)
			if err != nil {
				return nil, err
			}
			shapes = append(shapes, s)
		}
		return MultiOutput{Shapes: shapes}, nil
	}
	s, err := jsonShape(r)
	if err != nil {
		return nil, err
	}
	return SingleOutput{Shape: s}, nil
}

func jsonShape(r gjson.Result) (Shape, error) {
	if !r.IsArray() {
		return nil, ErrMalformedShape
	}
	elems := r.Array()
	s := make(Shape, 0, len(elems))
	for _, e := range elems {
		switch e.Type {
		case gjson.Null:
			s = append(s, Unknown())
		case gjson.Number:
			s = append(s, Known(int(e.Int())))
		default:
			return nil, fmt.Errorf("%w: dim %s", ErrMalformedShape, e.Raw)
		}
	}
	return s, nil
}
