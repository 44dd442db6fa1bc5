package metrics

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang/protobuf/proto"
	structpb "github.com/golang/protobuf/ptypes/struct"

	"github.com/robotalks/framelink/pkg/l0/frame"
)

// Report is a snapshot of link counters published to remote monitors.
// On the wire it's a protobuf Struct with one number per counter, the link
// ID under "link" and the time under "time" (RFC 3339).
type Report struct {
	Link  string
	Time  time.Time
	Stats frame.StatsSnapshot
}

const (
	keyLink = "link"
	keyTime = "time"
)

// Struct converts the report to a protobuf Struct.
func (r *Report) Struct() *structpb.Struct {
	s := &structpb.Struct{Fields: map[string]*structpb.Value{
		keyLink: {Kind: &structpb.Value_StringValue{StringValue: r.Link}},
		keyTime: {Kind: &structpb.Value_StringValue{StringValue: r.Time.UTC().Format(time.RFC3339Nano)}},
	}}
	for _, f := range r.Stats.Fields() {
		s.Fields[f.Name] = &structpb.Value{Kind: &structpb.Value_NumberValue{NumberValue: float64(*f.Value)}}
	}
	return s
}

// Marshal encodes the report.
func (r *Report) Marshal() ([]byte, error) {
	return proto.Marshal(r.Struct())
}

// FromStruct fills the report from a protobuf Struct. Unknown keys are
// ignored, missing counters are zero.
func (r *Report) FromStruct(s *structpb.Struct) error {
	*r = Report{}
	if v, ok := s.GetFields()[keyLink]; ok {
		r.Link = v.GetStringValue()
	}
	if v, ok := s.GetFields()[keyTime]; ok {
		t, err := time.Parse(time.RFC3339Nano, v.GetStringValue())
		if err != nil {
			return fmt.Errorf("invalid time: %w", err)
		}
		r.Time = t
	}
	for _, f := range r.Stats.Fields() {
		if v, ok := s.GetFields()[f.Name]; ok {
			*f.Value = uint64(v.GetNumberValue())
		}
	}
	return nil
}

// UnmarshalReport decodes a report.
func UnmarshalReport(data []byte) (*Report, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	r := &Report{}
	if err := r.FromStruct(&s); err != nil {
		return nil, err
	}
	return r, nil
}

// String formats the non-zero counters.
func (r *Report) String() string {
	var sb strings.Builder
	sb.WriteString(r.Link)
	for _, f := range r.Stats.Fields() {
		if *f.Value != 0 {
			fmt.Fprintf(&sb, " %s=%d", f.Name, *f.Value)
		}
	}
	return sb.String()
}
