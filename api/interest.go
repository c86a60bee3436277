// File: api/interest.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Interest describes the readiness conditions a registration cares about.
// Builder-composed and translated per backend into level- or
// edge-triggered registration semantics.

package api

// Interest is a bitmask of readiness conditions.
type Interest uint8

const (
	InterestReadable Interest = 1 << iota
	InterestWritable
	InterestOneshot
	InterestEdge
	InterestPriority
)

// WithReadable adds read readiness.
func (i Interest) WithReadable() Interest { return i | InterestReadable }

// WithWritable adds write readiness.
func (i Interest) WithWritable() Interest { return i | InterestWritable }

// WithOneshot makes the registration self-deregister after it fires once.
func (i Interest) WithOneshot() Interest { return i | InterestOneshot }

// WithEdge requests edge-triggered delivery where the backend supports it.
func (i Interest) WithEdge() Interest { return i | InterestEdge }

// WithPriority adds urgent/out-of-band readiness.
func (i Interest) WithPriority() Interest { return i | InterestPriority }

func (i Interest) IsReadable() bool { return i&InterestReadable != 0 }
func (i Interest) IsWritable() bool { return i&InterestWritable != 0 }
func (i Interest) IsOneshot() bool  { return i&InterestOneshot != 0 }
func (i Interest) IsEdge() bool     { return i&InterestEdge != 0 }
func (i Interest) IsPriority() bool { return i&InterestPriority != 0 }
