package cacheinfra

import (
	"reflect"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// msgpack restores timestamps in the local zone. Cached records must compare
// equal to the ones read from the store, which are UTC, so the decoder for
// time.Time is replaced once for the process.
func init() {
	msgpack.Register(time.Time{}, nil, decodeUTCTime)
}

func decodeUTCTime(d *msgpack.Decoder, v reflect.Value) error {
	code, err := d.PeekCode()
	if err != nil {
		return err
	}
	if code == msgpcode.Nil {
		v.Set(reflect.ValueOf(time.Time{}))
		return d.DecodeNil()
	}
	tm, err := d.DecodeTime()
	if err != nil {
		return err
	}
	v.Set(reflect.ValueOf(tm.UTC()))
	return nil
}

func encodeValue(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

// decodeValue decodes data into a new value of typ.
func decodeValue(data []byte, typ reflect.Type) (any, error) {
	ptr := reflect.New(typ)
	if err := msgpack.Unmarshal(data, ptr.Interface()); err != nil {
		return nil, err
	}
	return ptr.Elem().Interface(), nil
}
