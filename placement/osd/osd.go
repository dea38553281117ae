// Package osd implements the per-target ledger of an object storage device:
// which folders live on it, how large they are, and how much capacity and
// bandwidth the device has.
package osd

import (
	"fmt"
	"math"

	"github.com/emirpasic/gods/maps/linkedhashmap"
)

// Unbounded is the capacity of an OSD whose capacity was never set.
var Unbounded = math.Inf(1)

const (
	// DefaultBandwidth is the bandwidth of an OSD whose bandwidth was never set.
	DefaultBandwidth = 1.0
)

// Entry is a folder id and the size recorded for it on an OSD
type Entry struct {
	ID   string
	Size float64
}

type option func(*OSD)

// WithCapacity sets the capacity of the OSD
func WithCapacity(capacity float64) option {
	return func(osd *OSD) {
		osd.capacity = capacity
	}
}

// WithBandwidth sets the bandwidth of the OSD
func WithBandwidth(bandwidth float64) option {
	return func(osd *OSD) {
		osd.bandwidth = bandwidth
	}
}

// OSD is the resource ledger of one object storage device. It is identified
// by its uuid and keeps the folders assigned to it in insertion order.
// TotalFolderSize always equals the sum of the recorded folder sizes.
//
// OSD is not safe for concurrent use.
type OSD struct {
	uuid            string
	capacity        float64
	bandwidth       float64
	totalFolderSize float64
	folders         *linkedhashmap.Map
}

// New creates an empty OSD with unbounded capacity and
// the default bandwidth unless options say otherwise.
func New(uuid string, opts ...option) *OSD {
	osd := &OSD{
		uuid:      uuid,
		capacity:  Unbounded,
		bandwidth: DefaultBandwidth,
		folders:   linkedhashmap.New(),
	}

	for _, opt := range opts {
		opt(osd)
	}

	return osd
}

// UUID returns the uuid of the OSD
func (osd *OSD) UUID() string {
	return osd.uuid
}

// Capacity returns the capacity of the OSD
func (osd *OSD) Capacity() float64 {
	return osd.capacity
}

// SetCapacity changes the capacity of the OSD. It does not
// check the folders already assigned against the new value.
func (osd *OSD) SetCapacity(capacity float64) {
	osd.capacity = capacity
}

// Bandwidth returns the bandwidth of the OSD
func (osd *OSD) Bandwidth() float64 {
	return osd.bandwidth
}

// SetBandwidth changes the bandwidth of the OSD
func (osd *OSD) SetBandwidth(bandwidth float64) {
	osd.bandwidth = bandwidth
}

// AddFolder records size bytes of the folder on this OSD. Adding
// a folder that is already present accumulates its size rather than
// replacing it. AddFolder panics if the OSD's capacity would be exceeded.
func (osd *OSD) AddFolder(id string, size float64) {
	if osd.totalFolderSize+size > osd.capacity {
		panic(fmt.Sprintf("osd %s: adding folder %s of size %v exceeds capacity %v (total folder size %v)", osd.uuid, id, size, osd.capacity, osd.totalFolderSize))
	}

	if current, ok := osd.folders.Get(id); ok {
		osd.folders.Put(id, current.(float64)+size)
	} else {
		osd.folders.Put(id, size)
	}

	osd.totalFolderSize += size
}

// RemoveFolder removes the folder from this OSD.
// It has no effect if the folder is absent.
func (osd *OSD) RemoveFolder(id string) {
	size, ok := osd.folders.Get(id)

	if !ok {
		return
	}

	osd.totalFolderSize -= size.(float64)
	osd.folders.Remove(id)
}

// UpdateFolder replaces the recorded size of a folder that is already
// present. The folder moves to the end of the insertion order.
// UpdateFolder panics if the folder is absent.
func (osd *OSD) UpdateFolder(id string, size float64) {
	if !osd.ContainsFolder(id) {
		panic(fmt.Sprintf("osd %s: cannot update absent folder %s", osd.uuid, id))
	}

	osd.RemoveFolder(id)
	osd.AddFolder(id, size)
}

// ContainsFolder returns true if the folder is assigned to this OSD
func (osd *OSD) ContainsFolder(id string) bool {
	_, ok := osd.folders.Get(id)

	return ok
}

// FolderSize returns the size recorded for the folder.
// It panics if the folder is absent.
func (osd *OSD) FolderSize(id string) float64 {
	size, ok := osd.folders.Get(id)

	if !ok {
		panic(fmt.Sprintf("osd %s: folder %s is not present", osd.uuid, id))
	}

	return size.(float64)
}

// SmallestFolder returns the folder with the strictly smallest size.
// Among folders of equal size the one inserted first wins. ok is false
// if the OSD holds no folders.
func (osd *OSD) SmallestFolder() (id string, size float64, ok bool) {
	iter := osd.folders.Iterator()

	for iter.Next() {
		s := iter.Value().(float64)

		if !ok || s < size {
			id, size, ok = iter.Key().(string), s, true
		}
	}

	return id, size, ok
}

// Folders lists the folders of this OSD in insertion order
func (osd *OSD) Folders() []Entry {
	entries := make([]Entry, 0, osd.folders.Size())
	iter := osd.folders.Iterator()

	for iter.Next() {
		entries = append(entries, Entry{ID: iter.Key().(string), Size: iter.Value().(float64)})
	}

	return entries
}

// NumFolders returns the number of folders on this OSD
func (osd *OSD) NumFolders() int {
	return osd.folders.Size()
}

// Load returns the total size of all folders on this OSD
func (osd *OSD) Load() float64 {
	return osd.totalFolderSize
}

// FreeCapacity returns the capacity that is not yet used by folders
func (osd *OSD) FreeCapacity() float64 {
	return osd.capacity - osd.totalFolderSize
}

// ProcessingTime returns the time the OSD needs to process
// all its folders at its bandwidth
func (osd *OSD) ProcessingTime() float64 {
	return osd.totalFolderSize / osd.bandwidth
}

// ReplaceFolders drops every folder of this OSD and adopts the folders of
// other in other's insertion order. Capacity, bandwidth and uuid of this
// OSD are kept. Capacity is not checked.
func (osd *OSD) ReplaceFolders(other *OSD) {
	osd.folders.Clear()
	osd.totalFolderSize = 0

	for _, entry := range other.Folders() {
		osd.folders.Put(entry.ID, entry.Size)
		osd.totalFolderSize += entry.Size
	}
}

// Clone returns an independent copy of the OSD
func (osd *OSD) Clone() *OSD {
	clone := New(osd.uuid, WithCapacity(osd.capacity), WithBandwidth(osd.bandwidth))
	clone.ReplaceFolders(osd)

	return clone
}

func (osd *OSD) String() string {
	return fmt.Sprintf("osd: '%s' totalFolderSize: %v processing time: %v number of folders: %d", osd.uuid, osd.totalFolderSize, osd.ProcessingTime(), osd.folders.Size())
}
