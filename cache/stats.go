package cache

// ShardStats is a point-in-time snapshot of one shard.
type ShardStats struct {
	Index   int
	Entries int

	MaxBytes       uint64
	UsedBytes      uint64
	FreeBytes      uint64
	AllocatedBytes uint64
	PageBytes      uint64
	Pages          int

	FreeBlocks    int
	ExpireBuckets int

	Hits      int64
	Misses    int64
	Evictions uint64
}

// Stats aggregates ShardStats over all shards. The snapshot is not atomic
// across shards.
type Stats struct {
	Shards  int
	Entries int

	MaxBytes       uint64
	UsedBytes      uint64
	FreeBytes      uint64
	AllocatedBytes uint64
	Pages          int
	FreeBlocks     int

	Hits      int64
	Misses    int64
	Evictions uint64

	PerShard []ShardStats
}

func (s *Stats) add(ss ShardStats) {
	s.Entries += ss.Entries
	s.MaxBytes += ss.MaxBytes
	s.UsedBytes += ss.UsedBytes
	s.FreeBytes += ss.FreeBytes
	s.AllocatedBytes += ss.AllocatedBytes
	s.Pages += ss.Pages
	s.FreeBlocks += ss.FreeBlocks
	s.Hits += ss.Hits
	s.Misses += ss.Misses
	s.Evictions += ss.Evictions
	s.PerShard = append(s.PerShard, ss)
}
