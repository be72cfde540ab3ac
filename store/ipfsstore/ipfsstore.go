// Package ipfsstore is a second Content Store substrate: an in-process,
// non-networked IPFS content-addressed DAG, addressed by CID rather than
// a flat Integrity string. It lets blobs be hashed under a genuinely
// different storage model, not just a second hash function over the same
// flat files, without colliding with the flat store's own keyspace.
//
// Limited to the offline/local subset of the IPFS stack (go-cid,
// go-datastore, go-ipfs-blockstore, go-blockservice, go-merkledag,
// go-unixfs, go-ipfs-chunker, multiformats/go-multihash): no
// libp2p/ipfs-lite peer-networking layer, since this store has no
// networked-node requirement.
package ipfsstore

import (
	"bytes"
	"context"
	"fmt"
	"io"

	blockservice "github.com/ipfs/go-blockservice"
	"github.com/ipfs/go-cid"
	"github.com/ipfs/go-datastore"
	blockstore "github.com/ipfs/go-ipfs-blockstore"
	chunker "github.com/ipfs/go-ipfs-chunker"
	offline "github.com/ipfs/go-ipfs-exchange-offline"
	merkledag "github.com/ipfs/go-merkledag"
	"github.com/ipfs/go-unixfs/importer/balanced"
	"github.com/ipfs/go-unixfs/importer/helpers"
	uio "github.com/ipfs/go-unixfs/io"
	"github.com/multiformats/go-multihash"
)

// cidBuilder fixes the hash function used for every DAG node this store
// produces: SHA2-256 over a CIDv1, unixfs/raw codec. Built explicitly
// from multihash.SHA2_256 rather than one of merkledag's canned
// prefixes, since the content store elsewhere standardizes its own
// digests on algorithm tags and this keeps the IPFS substrate's hash
// choice equally explicit.
var cidBuilder = cid.V1Builder{Codec: cid.DagProtobuf, MhType: multihash.SHA2_256}

// Store is a CID-addressed blob store backed by an in-process unixfs DAG.
// It has no peer-to-peer exchange: Get only ever resolves blocks already
// present in the local blockstore, matching this core's "no transport
// retries, no networking" non-goal.
type Store struct {
	dagService merkledag.DAGService
	bstore     blockstore.Blockstore
}

// New constructs a Store over the given datastore (an in-memory
// datastore.NewMapDatastore() for tests, or any go-datastore-compatible
// backend for durable local storage).
func New(ds datastore.Batching) *Store {
	bs := blockstore.NewBlockstore(ds)
	bserv := blockservice.New(bs, offline.Exchange(bs))
	return &Store{
		dagService: merkledag.NewDAGService(bserv),
		bstore:     bs,
	}
}

// Put chunks r through the unixfs importer and returns the root CID of
// the resulting DAG.
func (s *Store) Put(ctx context.Context, r io.Reader) (cid.Cid, error) {
	dbp := helpers.DagBuilderParams{
		Dagserv:    s.dagService,
		Maxlinks:   helpers.DefaultLinksPerBlock,
		CidBuilder: cidBuilder,
	}
	db, err := dbp.New(chunker.DefaultSplitter(r))
	if err != nil {
		return cid.Undef, fmt.Errorf("ipfsstore: new dag builder: %w", err)
	}
	nd, err := balanced.Layout(db)
	if err != nil {
		return cid.Undef, fmt.Errorf("ipfsstore: import failed: %w", err)
	}
	return nd.Cid(), nil
}

// Get reassembles the full content addressed by c.
func (s *Store) Get(ctx context.Context, c cid.Cid) ([]byte, error) {
	nd, err := s.dagService.Get(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("ipfsstore: resolve %s failed: %w", c, err)
	}
	dr, err := uio.NewDagReader(ctx, nd, s.dagService)
	if err != nil {
		return nil, fmt.Errorf("ipfsstore: read %s failed: %w", c, err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, dr); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Has reports whether the root block of c is present locally.
func (s *Store) Has(ctx context.Context, c cid.Cid) (bool, error) {
	return s.bstore.Has(ctx, c)
}
