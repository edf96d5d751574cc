// Command demo exercises the storage core end to end: a disk-backed
// parallel buffer pool fronting an extendible hash index and a B+-tree
// index over the same key space, logged the way the rest of the module
// logs.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"diskengine/pkg/buffer"
	"diskengine/pkg/btree"
	"diskengine/pkg/common"
	"diskengine/pkg/disk"
	"diskengine/pkg/hash"
)

func main() {
	dbFile := flag.String("db", "diskengine.db", "path to the backing page file")
	shards := flag.Int("shards", 4, "number of buffer pool instances")
	poolSize := flag.Int("pool-size", 32, "frames per buffer pool instance")
	flag.Parse()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log := logrus.WithField("component", "demo")

	dm, err := disk.NewFileDiskManager(*dbFile)
	if err != nil {
		log.WithError(err).Fatal("open disk manager")
	}
	defer dm.Close()

	pool := buffer.NewParallel(*shards, *poolSize, dm, disk.NopLogManager{}, buffer.ReplacerClock)

	// Reserve page 0 for the header page before any other structural
	// allocation, so the round-robin allocator never hands HeaderPageID out
	// to a hash directory or tree node. Only correct for a fresh file: a
	// reopened database must reconstruct its allocator cursor from disk
	// instead (see DESIGN.md's note on the sharded-allocator footgun).
	headerGuard, err := buffer.NewPageGuard(pool)
	if err != nil {
		log.WithError(err).Fatal("reserve header page")
	}
	if headerGuard.Page().ID != common.HeaderPageID {
		log.WithField("got", headerGuard.Page().ID).Fatal("header page reservation raced with another allocation")
	}
	btree.NewHeaderPage(headerGuard.Page()).Init()
	if err := headerGuard.Release(); err != nil {
		log.WithError(err).Fatal("unpin header page")
	}

	ht, err := hash.New[common.Int64Key, common.RID](pool, 200, common.Int64KeyCodec{}, common.RIDCodec{}, common.Int64Comparator{}, common.XXHashFunction{})
	if err != nil {
		log.WithError(err).Fatal("create hash index")
	}

	tree, err := btree.Open[common.Int64Key, common.RID](pool, "primary", 4, 4, common.Int64KeyCodec{}, common.RIDCodec{}, common.Int64Comparator{})
	if err != nil {
		log.WithError(err).Fatal("open btree index")
	}

	rows := []int64{10, 20, 30, 40, 5, 15, 25, 35, 45}
	for _, k := range rows {
		key := common.Int64Key(k)
		rid := common.RID{PageID: common.PageID(k), SlotNum: 0}

		if _, err := ht.Insert(key, rid); err != nil {
			log.WithError(err).WithField("key", k).Fatal("hash insert")
		}
		if _, err := tree.Insert(key, rid); err != nil {
			log.WithError(err).WithField("key", k).Fatal("btree insert")
		}
	}
	log.WithField("count", len(rows)).Info("inserted rows into both indexes")

	for _, k := range rows {
		key := common.Int64Key(k)
		hvals, err := ht.GetValue(key)
		if err != nil {
			log.WithError(err).WithField("key", k).Fatal("hash lookup")
		}
		tvals, err := tree.GetValue(key)
		if err != nil {
			log.WithError(err).WithField("key", k).Fatal("btree lookup")
		}
		fmt.Printf("key=%d hash=%v btree=%v\n", k, hvals, tvals)
	}

	if err := pool.FlushAllPages(); err != nil {
		log.WithError(err).Warn("flush all pages")
	}
	log.Info(pool.Stats().String())
	os.Exit(0)
}
