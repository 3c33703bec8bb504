package broadcaster

import (
	"encoding/json"
	"strconv"

	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const eventVersion = 1

// Event is the broadcast form of one ledger entry.
type Event struct {
	V     int    `json:"v"`
	Block uint64 `json:"block"`
	State string `json:"state"`
	At    int64  `json:"at"`
}

// Codec turns events into message payloads.
type Codec interface {
	Encode(Event) ([]byte, error)
	Decode([]byte) (Event, error)
}

func CodecFor(format string) (Codec, error) {
	switch format {
	case "", "proto":
		return ProtoCodec{}, nil
	case "json":
		return JSONCodec{}, nil
	default:
		return nil, errors.Newf("broadcaster: unknown format %q", format)
	}
}

type JSONCodec struct{}

func (JSONCodec) Encode(e Event) ([]byte, error) {
	return json.Marshal(e)
}

func (JSONCodec) Decode(b []byte) (Event, error) {
	var e Event
	err := json.Unmarshal(b, &e)
	return e, errors.Wrap(err, "decode json event")
}

// ProtoCodec encodes events as google.protobuf.Struct. Block IDs and
// timestamps travel as decimal strings since Struct numbers are doubles.
type ProtoCodec struct{}

func (ProtoCodec) Encode(e Event) ([]byte, error) {
	s, err := structpb.NewStruct(map[string]any{
		"v":     e.V,
		"block": strconv.FormatUint(e.Block, 10),
		"state": e.State,
		"at":    strconv.FormatInt(e.At, 10),
	})
	if err != nil {
		return nil, errors.Wrap(err, "build event struct")
	}
	return proto.Marshal(s)
}

func (ProtoCodec) Decode(b []byte) (Event, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(b, &s); err != nil {
		return Event{}, errors.Wrap(err, "decode proto event")
	}
	f := s.GetFields()
	block, err := strconv.ParseUint(f["block"].GetStringValue(), 10, 64)
	if err != nil {
		return Event{}, errors.Wrap(err, "event block")
	}
	at, err := strconv.ParseInt(f["at"].GetStringValue(), 10, 64)
	if err != nil {
		return Event{}, errors.Wrap(err, "event time")
	}
	return Event{
		V:     int(f["v"].GetNumberValue()),
		Block: block,
		State: f["state"].GetStringValue(),
		At:    at,
	}, nil
}
