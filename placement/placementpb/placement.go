// Package placementpb contains the protobuf messages that
// describe the persisted state of a distribution.
package placementpb

import (
	proto "github.com/gogo/protobuf/proto"
)

var _ proto.Message = (*DistributionSnapshot)(nil)

// DistributionSnapshot is the complete state of a distribution.
// OSDs and their folders keep their insertion order.
type DistributionSnapshot struct {
	OSDs     []*OSDSnapshot `protobuf:"bytes,1,rep,name=osds,proto3" json:"osds,omitempty"`
	Revision uint64         `protobuf:"varint,2,opt,name=revision,proto3" json:"revision,omitempty"`
}

// Reset implements proto.Message.Reset
func (m *DistributionSnapshot) Reset() { *m = DistributionSnapshot{} }

// String implements proto.Message.String
func (m *DistributionSnapshot) String() string { return proto.CompactTextString(m) }

// ProtoMessage implements proto.Message.ProtoMessage
func (*DistributionSnapshot) ProtoMessage() {}

var _ proto.Message = (*OSDSnapshot)(nil)

// OSDSnapshot is the state of one OSD ledger
type OSDSnapshot struct {
	UUID      string         `protobuf:"bytes,1,opt,name=uuid,proto3" json:"uuid,omitempty"`
	Capacity  float64        `protobuf:"fixed64,2,opt,name=capacity,proto3" json:"capacity,omitempty"`
	Bandwidth float64        `protobuf:"fixed64,3,opt,name=bandwidth,proto3" json:"bandwidth,omitempty"`
	Folders   []*FolderEntry `protobuf:"bytes,4,rep,name=folders,proto3" json:"folders,omitempty"`
}

// Reset implements proto.Message.Reset
func (m *OSDSnapshot) Reset() { *m = OSDSnapshot{} }

// String implements proto.Message.String
func (m *OSDSnapshot) String() string { return proto.CompactTextString(m) }

// ProtoMessage implements proto.Message.ProtoMessage
func (*OSDSnapshot) ProtoMessage() {}

var _ proto.Message = (*FolderEntry)(nil)

// FolderEntry is a folder id and its recorded size
type FolderEntry struct {
	ID   string  `protobuf:"bytes,1,opt,name=id,proto3" json:"id,omitempty"`
	Size float64 `protobuf:"fixed64,2,opt,name=size,proto3" json:"size,omitempty"`
}

// Reset implements proto.Message.Reset
func (m *FolderEntry) Reset() { *m = FolderEntry{} }

// String implements proto.Message.String
func (m *FolderEntry) String() string { return proto.CompactTextString(m) }

// ProtoMessage implements proto.Message.ProtoMessage
func (*FolderEntry) ProtoMessage() {}
