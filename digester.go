// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package calcgraph

import (
	"crypto"
	_ "crypto/sha256"
	"fmt"

	"github.com/grailbio/base/digest"
)

// Digester is the digester used for payload and span digests.
var Digester = digest.Digester(crypto.SHA256)

// A Digestible payload computes its own digest.
type Digestible interface {
	Digest() digest.Digest
}

// PayloadDigest returns a digest of p's payload. Payloads that
// implement Digestible are digested by that method; byte slices and
// strings are digested directly; other payloads are digested by
// their type and printed value.
func PayloadDigest(p Packet) digest.Digest {
	switch v := p.Get().(type) {
	case nil:
		return digest.Digest{}
	case Digestible:
		return v.Digest()
	case []byte:
		return Digester.FromBytes(v)
	case string:
		return Digester.FromString(v)
	default:
		return Digester.FromString(fmt.Sprintf("%T:%v", v, v))
	}
}
