package model

type Layer struct {
	Name               string
	Kind               string
	Output             OutputShape
	TrainableParams    int64
	NonTrainableParams int64
}

// Model is read-only: estimators never mutate it.
type Model interface {
	Name() string
	Layers() []Layer
	TrainableParams() int64
	NonTrainableParams() int64
}

// Sequential is an ordered list of layers. Aggregate parameter counts are
// summed over the layers unless Trainable/NonTrainable are set explicitly.
type Sequential struct {
	ModelName    string
	LayerList    []Layer
	Trainable    *int64
	NonTrainable *int64
}

func NewSequential(name string, layers ...Layer) *Sequential {
	return &Sequential{ModelName: name, LayerList: layers}
}

func (s *Sequential) Name() string { return s.ModelName }

func (s *Sequential) Layers() []Layer { return s.LayerList }

func (s *Sequential) TrainableParams() int64 {
	if s.Trainable != nil {
		return *s.Trainable
	}
	var n int64
	for _, l := range s.LayerList {
		n += l.TrainableParams
	}
	return n
}

func (s *Sequential) NonTrainableParams() int64 {
	if s.NonTrainable != nil {
		return *s.NonTrainable
	}
	var n int64
	for _, l := range s.LayerList {
		n += l.NonTrainableParams
	}
	return n
}
