/*
 * Copyright 2024 Wang Min Xiang
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 * 	http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package codec provides the pack/unpack indirection the Store treats as an
// opaque, side-effect-free pair. The fast path uses github.com/aacfactory/json;
// a plain encoding/json fallback covers values the fast encoder rejects.
package codec

import (
	stdjson "encoding/json"

	"github.com/aacfactory/json"
	"github.com/valyala/bytebufferpool"
)

// Codec packs a value to bytes and unpacks bytes back to a value. Both
// directions must be deterministic enough that pack/unpack round trips an
// equivalent value.
type Codec interface {
	Pack(value any) (data []byte, err error)
	Unpack(data []byte) (value any, err error)
}

// Default is the Codec used when the caller does not supply one: fast path
// via github.com/aacfactory/json, falling back to the stdlib encoder/decoder
// on any fast-path error.
var Default Codec = jsonCodec{}

type jsonCodec struct{}

func (jsonCodec) Pack(value any) (data []byte, err error) {
	encoded, encodeErr := json.Marshal(value)
	if encodeErr != nil {
		data, err = stdjson.Marshal(value)
		return
	}
	// Stage through a pooled buffer before handing back an owned copy, the
	// same Get/Write/Bytes/Put shape KVS.Value uses.
	buf := bytebufferpool.Get()
	_, _ = buf.Write(encoded)
	data = append([]byte(nil), buf.Bytes()...)
	bytebufferpool.Put(buf)
	return
}

func (jsonCodec) Unpack(data []byte) (value any, err error) {
	var v any
	err = json.Unmarshal(data, &v)
	if err != nil {
		err = stdjson.Unmarshal(data, &v)
	}
	if err == nil {
		value = v
	}
	return
}
