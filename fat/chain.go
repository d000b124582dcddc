package fat

import (
	emerrors "github.com/segger-go/emfile/errors"
)

// AdjacencyCache remembers, per open file, the cluster index -> cluster id
// mapping most recently resolved, so sequential access doesn't have to
// re-walk the chain from cluster 0 every time. NumAdjClusters counts how
// many clusters starting at CachedIndex are known to be physically
// contiguous, letting a sequential read/write issue one multi-sector I/O
// instead of one per cluster.
type AdjacencyCache struct {
	CachedIndex   uint32
	CachedCluster uint32
	NumAdjClusters uint32
	Valid         bool
}

// ClusterOfIndex returns the cluster id holding the clusterIndex'th
// cluster of the chain starting at startCluster, consulting and updating
// cache to avoid walking from the start on every call.
func (t *Table) ClusterOfIndex(startCluster uint32, clusterIndex uint32, cache *AdjacencyCache) (uint32, error) {
	if cache.Valid && clusterIndex >= cache.CachedIndex {
		delta := clusterIndex - cache.CachedIndex
		if delta < cache.NumAdjClusters {
			return cache.CachedCluster + delta, nil
		}
	}

	startIdx, startCl := uint32(0), startCluster
	if cache.Valid && clusterIndex >= cache.CachedIndex {
		startIdx = cache.CachedIndex
		startCl = cache.CachedCluster
	}

	cluster := startCl
	idx := startIdx
	for idx < clusterIndex {
		next, err := t.ReadEntry(cluster)
		if err != nil {
			return 0, err
		}
		if t.IsEndOfChain(next) || next == ClusterFree {
			return 0, emerrors.New(emerrors.InvalidClusterChain)
		}
		cluster = next
		idx++
	}

	adj, err := t.forwardContiguousRun(cluster)
	if err != nil {
		return 0, err
	}
	*cache = AdjacencyCache{CachedIndex: idx, CachedCluster: cluster, NumAdjClusters: adj, Valid: true}
	return cluster, nil
}

// forwardContiguousRun reports how many clusters starting at cluster are
// physically contiguous (cluster, cluster+1, cluster+2, ...), so the cache's
// NumAdjClusters reflects the run the fast path above actually walks
// forward through, not the run that happened to lead up to cluster.
func (t *Table) forwardContiguousRun(cluster uint32) (uint32, error) {
	run := uint32(1)
	c := cluster
	for {
		next, err := t.ReadEntry(c)
		if err != nil {
			return 0, err
		}
		if t.IsEndOfChain(next) || next == ClusterFree || next != c+1 {
			return run, nil
		}
		run++
		c = next
	}
}

// ChainLength walks the full chain starting at startCluster and returns
// the number of clusters in it, detecting cross-links by capping the walk
// at NumClusters+1 steps.
func (t *Table) ChainLength(startCluster uint32) (uint32, error) {
	if startCluster == ClusterFree {
		return 0, nil
	}
	count := uint32(0)
	cluster := startCluster
	for {
		count++
		if count > t.NumClusters+1 {
			return 0, emerrors.New(emerrors.InvalidClusterChain)
		}
		next, err := t.ReadEntry(cluster)
		if err != nil {
			return 0, err
		}
		if t.IsEndOfChain(next) {
			return count, nil
		}
		if next == ClusterFree {
			return 0, emerrors.New(emerrors.InvalidClusterChain)
		}
		cluster = next
	}
}

// AppendCluster allocates one new cluster and links it to the end of the
// chain starting at startCluster, returning the new cluster's id. If
// startCluster is ClusterFree, the new cluster becomes the chain's first.
func (t *Table) AppendCluster(startCluster uint32) (newStart, newCluster uint32, err error) {
	newCluster, err = t.AllocateCluster()
	if err != nil {
		return 0, 0, err
	}
	if startCluster == ClusterFree {
		return newCluster, newCluster, nil
	}

	cluster := startCluster
	for {
		next, err := t.ReadEntry(cluster)
		if err != nil {
			return 0, 0, err
		}
		if t.IsEndOfChain(next) {
			break
		}
		if next == ClusterFree {
			return 0, 0, emerrors.New(emerrors.InvalidClusterChain)
		}
		cluster = next
	}
	if err := t.WriteEntry(cluster, newCluster); err != nil {
		return 0, 0, err
	}
	return startCluster, newCluster, nil
}

// TruncateChain cuts the chain starting at startCluster down to keepCount
// clusters, marking the EOC and freeing the clusters beyond it.
func (t *Table) TruncateChain(startCluster uint32, keepCount uint32) error {
	if keepCount == 0 {
		return t.FreeChain(startCluster)
	}
	cluster := startCluster
	for i := uint32(1); i < keepCount; i++ {
		next, err := t.ReadEntry(cluster)
		if err != nil {
			return err
		}
		if t.IsEndOfChain(next) || next == ClusterFree {
			return emerrors.New(emerrors.InvalidClusterChain)
		}
		cluster = next
	}
	tail, err := t.ReadEntry(cluster)
	if err != nil {
		return err
	}
	if err := t.WriteEntry(cluster, t.EndOfChainMarker()); err != nil {
		return err
	}
	if !t.IsEndOfChain(tail) && tail != ClusterFree {
		return t.FreeChain(tail)
	}
	return nil
}

// ClusterToSector converts a cluster id to its first data-area sector.
func (t *Table) ClusterToSector(cluster uint32) uint32 {
	const firstDataCluster = 2
	return t.DataStartSector + (cluster-firstDataCluster)<<t.LdSectorsPerClust
}
