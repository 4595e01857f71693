package gpuinfo

import "context"

// Provider reports one Record per physical GPU in device index order.
type Provider interface {
	Query(ctx context.Context) ([]Record, error)
	Close() error
	Name() string
}

// Static serves fixed records. Useful for dry runs and tests.
type Static struct {
	Records []Record
	Err     error
}

func (s *Static) Name() string { return "static" }

func (s *Static) Close() error { return nil }

func (s *Static) Query(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]Record, len(s.Records))
	for i, r := range s.Records {
		out[i] = r.Clone()
	}
	return out, nil
}
