package api

import (
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ToStruct converts a JSON-tagged value into a Struct.
func ToStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := new(structpb.Struct)
	if err := protojson.Unmarshal(raw, s); err != nil {
		return nil, err
	}
	return s, nil
}

// ToList converts a slice of JSON-tagged values into a ListValue.
func ToList[T any](items []T) (*structpb.ListValue, error) {
	if items == nil {
		items = []T{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	l := new(structpb.ListValue)
	if err := protojson.Unmarshal(raw, l); err != nil {
		return nil, err
	}
	return l, nil
}

// FromStruct decodes s into the JSON-tagged value v.
func FromStruct(s *structpb.Struct, v any) error {
	raw, err := protojson.Marshal(s)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// FromList decodes l into the slice pointed to by v.
func FromList(l *structpb.ListValue, v any) error {
	raw, err := protojson.Marshal(l)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// toStatus maps a domain error onto a gRPC status.
func toStatus(op string, err error) error {
	if err == nil {
		return nil
	}
	if strings.HasPrefix(err.Error(), "validation: ") {
		return grpcstatus.Error(codes.InvalidArgument, err.Error())
	}
	return grpcstatus.Errorf(codes.Internal, "%s: %v", op, err)
}

func decodeRequest(in *structpb.Struct, v any) error {
	if in == nil {
		return grpcstatus.Error(codes.InvalidArgument, "validation: empty request")
	}
	if err := FromStruct(in, v); err != nil {
		return grpcstatus.Error(codes.InvalidArgument, fmt.Sprintf("validation: bad request: %v", err))
	}
	return nil
}
