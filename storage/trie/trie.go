package trie

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	gethtrie "github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/triedb"

	"stakevault/storage"
)

// StateRoot builds a Merkle Patricia trie over every record stored under
// prefix and returns its root hash. Keys are hashed with Keccak256 so the
// trie shape does not depend on key layout. Records with empty values are
// treated as absent. The trie lives in memory and is discarded on return.
func StateRoot(db storage.Database, prefix []byte) (common.Hash, error) {
	trie, err := newMemoryTrie()
	if err != nil {
		return common.Hash{}, err
	}
	var updateErr error
	err = db.Iterate(prefix, func(key, value []byte) bool {
		if len(value) == 0 {
			return true
		}
		if updateErr = trie.Update(crypto.Keccak256(key), value); updateErr != nil {
			return false
		}
		return true
	})
	if err != nil {
		return common.Hash{}, err
	}
	if updateErr != nil {
		return common.Hash{}, updateErr
	}
	return trie.Hash(), nil
}

// Empty reports whether root is the root of the empty trie.
func Empty(root common.Hash) bool {
	return root == gethtypes.EmptyRootHash
}

func newMemoryTrie() (*gethtrie.Trie, error) {
	db := rawdb.NewDatabase(memorydb.New())
	trieDB := triedb.NewDatabase(db, triedb.HashDefaults)
	return gethtrie.New(gethtrie.TrieID(gethtypes.EmptyRootHash), trieDB)
}
