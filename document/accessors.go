package document

import (
	"context"

	"github.com/pkg/errors"

	"pdflib/ir/raw"
)

// ErrTypeCheck reports a dictionary value of the wrong type.
var ErrTypeCheck = errors.New("unexpected object type")

// DictGet resolves dict[key] through any reference chain. The boolean is
// false when the key is absent; a present key that resolves to null comes
// back as raw.Null with true.
func (d *Document) DictGet(ctx context.Context, dict *raw.DictObj, key string) (raw.Object, bool, error) {
	if dict == nil {
		return raw.Null, false, nil
	}
	v, ok := dict.Lookup(key)
	if !ok {
		return raw.Null, false, nil
	}
	resolved, err := d.loader.Resolve(ctx, v)
	if err != nil {
		return raw.Null, true, err
	}
	return resolved, true, nil
}

func (d *Document) DictGetDict(ctx context.Context, dict *raw.DictObj, key string) (*raw.DictObj, error) {
	v, ok, err := d.DictGet(ctx, dict, key)
	if err != nil || !ok {
		return nil, err
	}
	out, ok := v.(*raw.DictObj)
	if !ok {
		return nil, errors.Wrapf(ErrTypeCheck, "%s: want dictionary, got %T", key, v)
	}
	return out, nil
}

func (d *Document) DictGetArray(ctx context.Context, dict *raw.DictObj, key string) (*raw.ArrayObj, error) {
	v, ok, err := d.DictGet(ctx, dict, key)
	if err != nil || !ok {
		return nil, err
	}
	out, ok := v.(*raw.ArrayObj)
	if !ok {
		return nil, errors.Wrapf(ErrTypeCheck, "%s: want array, got %T", key, v)
	}
	return out, nil
}

func (d *Document) DictGetStream(ctx context.Context, dict *raw.DictObj, key string) (*raw.StreamObj, error) {
	v, ok, err := d.DictGet(ctx, dict, key)
	if err != nil || !ok {
		return nil, err
	}
	out, ok := v.(*raw.StreamObj)
	if !ok {
		return nil, errors.Wrapf(ErrTypeCheck, "%s: want stream, got %T", key, v)
	}
	return out, nil
}

func (d *Document) DictGetName(ctx context.Context, dict *raw.DictObj, key string) (string, error) {
	v, ok, err := d.DictGet(ctx, dict, key)
	if err != nil || !ok {
		return "", err
	}
	n, ok := v.(raw.NameObj)
	if !ok {
		return "", errors.Wrapf(ErrTypeCheck, "%s: want name, got %T", key, v)
	}
	return n.Val, nil
}

func (d *Document) DictGetInt(ctx context.Context, dict *raw.DictObj, key string) (int64, bool, error) {
	v, ok, err := d.DictGet(ctx, dict, key)
	if err != nil || !ok {
		return 0, false, err
	}
	n, ok := v.(raw.NumberObj)
	if !ok || !n.IsInt {
		return 0, false, errors.Wrapf(ErrTypeCheck, "%s: want integer, got %T", key, v)
	}
	return n.I, true, nil
}

func (d *Document) DictGetNumber(ctx context.Context, dict *raw.DictObj, key string) (float64, bool, error) {
	v, ok, err := d.DictGet(ctx, dict, key)
	if err != nil || !ok {
		return 0, false, err
	}
	n, ok := v.(raw.NumberObj)
	if !ok {
		return 0, false, errors.Wrapf(ErrTypeCheck, "%s: want number, got %T", key, v)
	}
	return n.Float(), true, nil
}

func (d *Document) DictGetString(ctx context.Context, dict *raw.DictObj, key string) ([]byte, error) {
	v, ok, err := d.DictGet(ctx, dict, key)
	if err != nil || !ok {
		return nil, err
	}
	s, ok := v.(raw.StringObj)
	if !ok {
		return nil, errors.Wrapf(ErrTypeCheck, "%s: want string, got %T", key, v)
	}
	return s.Bytes, nil
}

func (d *Document) DictGetBool(ctx context.Context, dict *raw.DictObj, key string) (bool, bool, error) {
	v, ok, err := d.DictGet(ctx, dict, key)
	if err != nil || !ok {
		return false, false, err
	}
	b, ok := v.(raw.BoolObj)
	if !ok {
		return false, false, errors.Wrapf(ErrTypeCheck, "%s: want boolean, got %T", key, v)
	}
	return b.V, true, nil
}
