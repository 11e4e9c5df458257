package model

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"sync/atomic"
	"time"
)

// txIDCounter and processUnique give every tx_id generated by this process a
// distinct low-order suffix even when two are minted in the same second.
var txIDCounter uint32
var processUnique [5]byte

func init() {
	rand.Read(processUnique[:])
}

// NewTxID mints a fresh, opaque transaction id: 4 bytes of timestamp, 5
// bytes of process-unique randomness, 3 bytes of atomic counter, hex
// encoded. The shape follows the same timestamp+random+counter recipe used
// elsewhere in this codebase for opaque ids, sized down since a tx_id only
// needs to be unique for the lifetime of one in-flight 2PC round.
func NewTxID() string {
	var id [12]byte

	timestamp := uint32(time.Now().Unix())
	binary.BigEndian.PutUint32(id[0:4], timestamp)

	copy(id[4:9], processUnique[:])

	counter := atomic.AddUint32(&txIDCounter, 1)
	id[9] = byte(counter >> 16)
	id[10] = byte(counter >> 8)
	id[11] = byte(counter)

	return hex.EncodeToString(id[:])
}
