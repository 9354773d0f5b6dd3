package parsing

import (
	"fmt"
)

// Path bits for the monitor stat document. Bits are reused across sibling
// subtrees; the full path mask disambiguates.
const (
	maskBackends      uint64 = 2
	maskBackendFolder uint64 = 4
	maskBackend       uint64 = 8
	maskDstat         uint64 = 0x10
	maskReadIos       uint64 = 0x20
	maskWriteIos      uint64 = 0x40
	maskReadTicks     uint64 = 0x80
	maskWriteTicks    uint64 = 0x100
	maskIoTicks       uint64 = 0x200
	maskReadSectors   uint64 = 0x400
	maskError         uint64 = 0x800
	maskVfs           uint64 = 0x20
	maskBlocks        uint64 = 0x40
	maskBavail        uint64 = 0x80
	maskBsize         uint64 = 0x100
	maskFsid          uint64 = 0x200
	maskSummaryStats  uint64 = 0x40
	maskRecordsTotal  uint64 = 0x80
)

// The remaining bits follow the same per-subtree numbering
const (
	maskRecordsRemoved     uint64 = 0x100
	maskRecordsRemovedSize uint64 = 0x200
	maskWantDefrag         uint64 = 0x400
	maskBaseSize           uint64 = 0x800
	maskConfig             uint64 = 0x80
	maskBlobSizeLimit      uint64 = 0x100
	maskBlobSize           uint64 = 0x200
	maskGroup              uint64 = 0x400
	maskDataPath           uint64 = 0x800
	maskFilePath           uint64 = 0x1000
	maskBaseStats          uint64 = 0x100
	maskBlobFilename       uint64 = 0x200
	maskBlobBaseSize       uint64 = 0x400
	maskBackendID          uint64 = 0x10
	maskStatus             uint64 = 0x20
	maskDefragState        uint64 = 0x40
	maskState              uint64 = 0x80
	maskReadOnly           uint64 = 0x100
	maskLastStart          uint64 = 0x200
	maskLastStartTvSec     uint64 = 0x400
	maskLastStartTvUsec    uint64 = 0x800
	maskCommands           uint64 = 0x40
	maskWrite              uint64 = 0x80
	maskNotWrite           uint64 = 0x100
	maskCmdCache           uint64 = 0x200
	maskCmdDisk            uint64 = 0x400
	maskCommandSource      uint64 = 0x800
	maskCmdSize            uint64 = 0x1000
	maskCmdTime            uint64 = 0x2000
	maskIo                 uint64 = 0x80
	maskBlocking           uint64 = 0x100
	maskNonblocking        uint64 = 0x200
	maskCurrentSize        uint64 = 0x400

	maskTimestamp uint64 = 4
	maskTvSec     uint64 = 8
	maskTvUsec    uint64 = 0x10

	maskProcfs           uint64 = 8
	maskVm               uint64 = 0x10
	maskLa               uint64 = 0x20
	maskNet              uint64 = 0x20
	maskNetInterfaces    uint64 = 0x40
	maskNetInterfaceName uint64 = 0x80
	maskReceive          uint64 = 0x100
	maskTransmit         uint64 = 0x200
	maskBytes            uint64 = 0x400

	maskStats    uint64 = 0x10
	maskStatName uint64 = 0x20
	maskCount    uint64 = 0x40
)

// errnoEROFS is the read-only-filesystem errno recorded by stat_commit
const errnoEROFS = 30

// BackendStat is one backend's record extracted from a monitor stat document
type BackendStat struct {
	BackendID uint64

	ReadIos     uint64
	WriteIos    uint64
	ReadTicks   uint64
	WriteTicks  uint64
	IoTicks     uint64
	ReadSectors uint64
	DstatError  uint64

	VfsBlocks uint64
	VfsBavail uint64
	VfsBsize  uint64
	Fsid      uint64
	VfsError  uint64

	RecordsTotal       uint64
	RecordsRemoved     uint64
	RecordsRemovedSize uint64
	WantDefrag         uint64
	BaseSize           uint64

	BlobSizeLimit   uint64
	BlobSize        uint64
	Group           uint64
	MaxBlobBaseSize uint64

	DefragState     uint64
	State           uint64
	ReadOnly        uint64
	LastStartTsSec  uint64
	LastStartTsUsec uint64

	EllCacheWriteSize uint64
	EllCacheWriteTime uint64
	EllDiskWriteSize  uint64
	EllDiskWriteTime  uint64
	EllCacheReadSize  uint64
	EllCacheReadTime  uint64
	EllDiskReadSize   uint64
	EllDiskReadTime   uint64

	IoBlockingSize    uint64
	IoNonblockingSize uint64

	DataPath string
	FilePath string

	// ParseErrors counts fields that arrived with an unexpected value type;
	// those fields keep their zero value
	ParseErrors uint64
}

// NodeStat is the node-level record extracted from a monitor stat document
type NodeStat struct {
	TsSec   uint64
	TsUsec  uint64
	La1     uint64
	RxBytes uint64
	TxBytes uint64
}

type statCommitStat struct {
	backend uint64
	errno   uint64
	count   uint64
}

type statsData struct {
	backend    BackendStat
	node       NodeStat
	statCommit statCommitStat
}

var statsFolders = [][]FolderRule{
	{
		{Match: "backends", Bit: maskBackends},
		{Match: "timestamp", Bit: maskTimestamp},
		{Match: "procfs", Bit: maskProcfs},
		{Match: "stats", Bit: maskStats},
	},
	{
		{Any: true, ParentMask: maskBackends, Bit: maskBackendFolder},
		{Match: "tv_sec", ParentMask: maskTimestamp, Bit: maskTvSec},
		{Match: "tv_usec", ParentMask: maskTimestamp, Bit: maskTvUsec},
		{Match: "vm", ParentMask: maskProcfs, Bit: maskVm},
		{Match: "net", ParentMask: maskProcfs, Bit: maskNet},
		{Any: true, ParentMask: maskStats, Bit: maskStatName},
	},
	{
		{Match: "backend", ParentMask: maskBackends | maskBackendFolder, Bit: maskBackend},
		{Match: "backend_id", ParentMask: maskBackends | maskBackendFolder, Bit: maskBackendID},
		{Match: "status", ParentMask: maskBackends | maskBackendFolder, Bit: maskStatus},
		{Match: "commands", ParentMask: maskBackends | maskBackendFolder, Bit: maskCommands},
		{Match: "io", ParentMask: maskBackends | maskBackendFolder, Bit: maskIo},
		{Match: "la", ParentMask: maskProcfs | maskVm, Bit: maskLa},
		{Match: "net_interfaces", ParentMask: maskProcfs | maskNet, Bit: maskNetInterfaces},
		{Match: "count", ParentMask: maskStats | maskStatName, Bit: maskCount},
	},
	{
		{Match: "dstat", ParentMask: maskBackends | maskBackendFolder | maskBackend, Bit: maskDstat},
		{Match: "vfs", ParentMask: maskBackends | maskBackendFolder | maskBackend, Bit: maskVfs},
		{Match: "summary_stats", ParentMask: maskBackends | maskBackendFolder | maskBackend, Bit: maskSummaryStats},
		{Match: "config", ParentMask: maskBackends | maskBackendFolder | maskBackend, Bit: maskConfig},
		{Match: "base_stats", ParentMask: maskBackends | maskBackendFolder | maskBackend, Bit: maskBaseStats},
		{Match: "defrag_state", ParentMask: maskBackends | maskBackendFolder | maskStatus, Bit: maskDefragState},
		{Match: "state", ParentMask: maskBackends | maskBackendFolder | maskStatus, Bit: maskState},
		{Match: "read_only", ParentMask: maskBackends | maskBackendFolder | maskStatus, Bit: maskReadOnly},
		{Match: "last_start", ParentMask: maskBackends | maskBackendFolder | maskStatus, Bit: maskLastStart},
		{Match: "WRITE", ParentMask: maskBackends | maskBackendFolder | maskCommands, Bit: maskWrite},
		{Match: "WRITE", Not: true, ParentMask: maskBackends | maskBackendFolder | maskCommands, Bit: maskNotWrite},
		{Match: "blocking", ParentMask: maskBackends | maskBackendFolder | maskIo, Bit: maskBlocking},
		{Match: "nonblocking", ParentMask: maskBackends | maskBackendFolder | maskIo, Bit: maskNonblocking},
		{Match: "lo", Not: true, ParentMask: maskProcfs | maskNet | maskNetInterfaces, Bit: maskNetInterfaceName},
	},
	{
		{Match: "read_ios", ParentMask: maskBackends | maskBackendFolder | maskBackend | maskDstat, Bit: maskReadIos},
		{Match: "write_ios", ParentMask: maskBackends | maskBackendFolder | maskBackend | maskDstat, Bit: maskWriteIos},
		{Match: "error", ParentMask: maskBackends | maskBackendFolder | maskBackend | maskDstat, Bit: maskError},
		{Match: "read_ticks", ParentMask: maskBackends | maskBackendFolder | maskBackend | maskDstat, Bit: maskReadTicks},
		{Match: "write_ticks", ParentMask: maskBackends | maskBackendFolder | maskBackend | maskDstat, Bit: maskWriteTicks},
		{Match: "io_ticks", ParentMask: maskBackends | maskBackendFolder | maskBackend | maskDstat, Bit: maskIoTicks},
		{Match: "read_sectors", ParentMask: maskBackends | maskBackendFolder | maskBackend | maskDstat, Bit: maskReadSectors},
		{Match: "blocks", ParentMask: maskBackends | maskBackendFolder | maskBackend | maskVfs, Bit: maskBlocks},
		{Match: "bavail", ParentMask: maskBackends | maskBackendFolder | maskBackend | maskVfs, Bit: maskBavail},
		{Match: "bsize", ParentMask: maskBackends | maskBackendFolder | maskBackend | maskVfs, Bit: maskBsize},
		{Match: "fsid", ParentMask: maskBackends | maskBackendFolder | maskBackend | maskVfs, Bit: maskFsid},
		{Match: "error", ParentMask: maskBackends | maskBackendFolder | maskBackend | maskVfs, Bit: maskError},
		{Match: "records_total", ParentMask: maskBackends | maskBackendFolder | maskBackend | maskSummaryStats, Bit: maskRecordsTotal},
		{Match: "records_removed", ParentMask: maskBackends | maskBackendFolder | maskBackend | maskSummaryStats, Bit: maskRecordsRemoved},
		{Match: "records_removed_size", ParentMask: maskBackends | maskBackendFolder | maskBackend | maskSummaryStats, Bit: maskRecordsRemovedSize},
		{Match: "want_defrag", ParentMask: maskBackends | maskBackendFolder | maskBackend | maskSummaryStats, Bit: maskWantDefrag},
		{Match: "base_size", ParentMask: maskBackends | maskBackendFolder | maskBackend | maskSummaryStats, Bit: maskBaseSize},
		{Match: "blob_size_limit", ParentMask: maskBackends | maskBackendFolder | maskBackend | maskConfig, Bit: maskBlobSizeLimit},
		{Match: "blob_size", ParentMask: maskBackends | maskBackendFolder | maskBackend | maskConfig, Bit: maskBlobSize},
		{Match: "group", ParentMask: maskBackends | maskBackendFolder | maskBackend | maskConfig, Bit: maskGroup},
		{Match: "data", ParentMask: maskBackends | maskBackendFolder | maskBackend | maskConfig, Bit: maskDataPath},
		{Match: "file", ParentMask: maskBackends | maskBackendFolder | maskBackend | maskConfig, Bit: maskFilePath},
		{Any: true, ParentMask: maskBackends | maskBackendFolder | maskBackend | maskBaseStats, Bit: maskBlobFilename},
		{Match: "tv_sec", ParentMask: maskBackends | maskBackendFolder | maskStatus | maskLastStart, Bit: maskLastStartTvSec},
		{Match: "tv_usec", ParentMask: maskBackends | maskBackendFolder | maskStatus | maskLastStart, Bit: maskLastStartTvUsec},
		{Match: "cache", ParentMask: maskBackends | maskBackendFolder | maskCommands | maskWrite, Bit: maskCmdCache},
		{Match: "disk", ParentMask: maskBackends | maskBackendFolder | maskCommands | maskWrite, Bit: maskCmdDisk},
		{Match: "cache", ParentMask: maskBackends | maskBackendFolder | maskCommands | maskNotWrite, Bit: maskCmdCache},
		{Match: "disk", ParentMask: maskBackends | maskBackendFolder | maskCommands | maskNotWrite, Bit: maskCmdDisk},
		{Match: "current_size", ParentMask: maskBackends | maskBackendFolder | maskIo | maskBlocking, Bit: maskCurrentSize},
		{Match: "current_size", ParentMask: maskBackends | maskBackendFolder | maskIo | maskNonblocking, Bit: maskCurrentSize},
		{Match: "receive", ParentMask: maskProcfs | maskNet | maskNetInterfaces | maskNetInterfaceName, Bit: maskReceive},
		{Match: "transmit", ParentMask: maskProcfs | maskNet | maskNetInterfaces | maskNetInterfaceName, Bit: maskTransmit},
	},
	{
		{Match: "base_size", ParentMask: maskBackends | maskBackendFolder | maskBackend | maskBaseStats | maskBlobFilename, Bit: maskBlobBaseSize},
		{Match: "bytes", ParentMask: maskProcfs | maskNet | maskNetInterfaces | maskNetInterfaceName | maskReceive, Bit: maskBytes},
		{Match: "bytes", ParentMask: maskProcfs | maskNet | maskNetInterfaces | maskNetInterfaceName | maskTransmit, Bit: maskBytes},
		{Any: true, ParentMask: maskBackends | maskBackendFolder | maskCommands | maskWrite | maskCmdCache, Bit: maskCommandSource},
		{Any: true, ParentMask: maskBackends | maskBackendFolder | maskCommands | maskWrite | maskCmdDisk, Bit: maskCommandSource},
		{Any: true, ParentMask: maskBackends | maskBackendFolder | maskCommands | maskNotWrite | maskCmdCache, Bit: maskCommandSource},
		{Any: true, ParentMask: maskBackends | maskBackendFolder | maskCommands | maskNotWrite | maskCmdDisk, Bit: maskCommandSource},
	},
	{
		{Match: "size", ParentMask: maskBackends | maskBackendFolder | maskCommands | maskWrite | maskCmdCache | maskCommandSource, Bit: maskCmdSize},
		{Match: "time", ParentMask: maskBackends | maskBackendFolder | maskCommands | maskWrite | maskCmdCache | maskCommandSource, Bit: maskCmdTime},
		{Match: "size", ParentMask: maskBackends | maskBackendFolder | maskCommands | maskWrite | maskCmdDisk | maskCommandSource, Bit: maskCmdSize},
		{Match: "time", ParentMask: maskBackends | maskBackendFolder | maskCommands | maskWrite | maskCmdDisk | maskCommandSource, Bit: maskCmdTime},
		{Match: "size", ParentMask: maskBackends | maskBackendFolder | maskCommands | maskNotWrite | maskCmdCache | maskCommandSource, Bit: maskCmdSize},
		{Match: "time", ParentMask: maskBackends | maskBackendFolder | maskCommands | maskNotWrite | maskCmdCache | maskCommandSource, Bit: maskCmdTime},
		{Match: "size", ParentMask: maskBackends | maskBackendFolder | maskCommands | maskNotWrite | maskCmdDisk | maskCommandSource, Bit: maskCmdSize},
		{Match: "time", ParentMask: maskBackends | maskBackendFolder | maskCommands | maskNotWrite | maskCmdDisk | maskCommandSource, Bit: maskCmdTime},
	},
}

type uintRule struct {
	mask  uint64
	op    UIntOp
	field func(*statsData) *uint64
}

type stringRule struct {
	mask  uint64
	field func(*statsData) *string
}

var statsUIntRules = []uintRule{
	{maskBackends | maskBackendFolder | maskBackendID, OpSet, func(d *statsData) *uint64 { return &d.backend.BackendID }},
	{maskBackends | maskBackendFolder | maskBackend | maskDstat | maskReadIos, OpSet, func(d *statsData) *uint64 { return &d.backend.ReadIos }},
	{maskBackends | maskBackendFolder | maskBackend | maskDstat | maskWriteIos, OpSet, func(d *statsData) *uint64 { return &d.backend.WriteIos }},
	{maskBackends | maskBackendFolder | maskBackend | maskDstat | maskReadTicks, OpSet, func(d *statsData) *uint64 { return &d.backend.ReadTicks }},
	{maskBackends | maskBackendFolder | maskBackend | maskDstat | maskWriteTicks, OpSet, func(d *statsData) *uint64 { return &d.backend.WriteTicks }},
	{maskBackends | maskBackendFolder | maskBackend | maskDstat | maskIoTicks, OpSet, func(d *statsData) *uint64 { return &d.backend.IoTicks }},
	{maskBackends | maskBackendFolder | maskBackend | maskDstat | maskReadSectors, OpSet, func(d *statsData) *uint64 { return &d.backend.ReadSectors }},
	{maskBackends | maskBackendFolder | maskBackend | maskDstat | maskError, OpSet, func(d *statsData) *uint64 { return &d.backend.DstatError }},
	{maskBackends | maskBackendFolder | maskBackend | maskVfs | maskBlocks, OpSet, func(d *statsData) *uint64 { return &d.backend.VfsBlocks }},
	{maskBackends | maskBackendFolder | maskBackend | maskVfs | maskBavail, OpSet, func(d *statsData) *uint64 { return &d.backend.VfsBavail }},
	{maskBackends | maskBackendFolder | maskBackend | maskVfs | maskBsize, OpSet, func(d *statsData) *uint64 { return &d.backend.VfsBsize }},
	{maskBackends | maskBackendFolder | maskBackend | maskVfs | maskFsid, OpSet, func(d *statsData) *uint64 { return &d.backend.Fsid }},
	{maskBackends | maskBackendFolder | maskBackend | maskVfs | maskError, OpSet, func(d *statsData) *uint64 { return &d.backend.VfsError }},
	{maskBackends | maskBackendFolder | maskBackend | maskSummaryStats | maskRecordsTotal, OpSet, func(d *statsData) *uint64 { return &d.backend.RecordsTotal }},
	{maskBackends | maskBackendFolder | maskBackend | maskSummaryStats | maskRecordsRemoved, OpSet, func(d *statsData) *uint64 { return &d.backend.RecordsRemoved }},
	{maskBackends | maskBackendFolder | maskBackend | maskSummaryStats | maskRecordsRemovedSize, OpSet, func(d *statsData) *uint64 { return &d.backend.RecordsRemovedSize }},
	{maskBackends | maskBackendFolder | maskBackend | maskSummaryStats | maskWantDefrag, OpSet, func(d *statsData) *uint64 { return &d.backend.WantDefrag }},
	{maskBackends | maskBackendFolder | maskBackend | maskSummaryStats | maskBaseSize, OpSet, func(d *statsData) *uint64 { return &d.backend.BaseSize }},
	{maskBackends | maskBackendFolder | maskBackend | maskConfig | maskBlobSizeLimit, OpSet, func(d *statsData) *uint64 { return &d.backend.BlobSizeLimit }},
	{maskBackends | maskBackendFolder | maskBackend | maskConfig | maskBlobSize, OpSet, func(d *statsData) *uint64 { return &d.backend.BlobSize }},
	{maskBackends | maskBackendFolder | maskBackend | maskConfig | maskGroup, OpSet, func(d *statsData) *uint64 { return &d.backend.Group }},
	{maskBackends | maskBackendFolder | maskBackend | maskBaseStats | maskBlobFilename | maskBlobBaseSize, OpMax, func(d *statsData) *uint64 { return &d.backend.MaxBlobBaseSize }},
	{maskBackends | maskBackendFolder | maskStatus | maskDefragState, OpSet, func(d *statsData) *uint64 { return &d.backend.DefragState }},
	{maskBackends | maskBackendFolder | maskStatus | maskState, OpSet, func(d *statsData) *uint64 { return &d.backend.State }},
	{maskBackends | maskBackendFolder | maskStatus | maskReadOnly, OpSet, func(d *statsData) *uint64 { return &d.backend.ReadOnly }},
	{maskBackends | maskBackendFolder | maskStatus | maskLastStart | maskLastStartTvSec, OpSet, func(d *statsData) *uint64 { return &d.backend.LastStartTsSec }},
	{maskBackends | maskBackendFolder | maskStatus | maskLastStart | maskLastStartTvUsec, OpSet, func(d *statsData) *uint64 { return &d.backend.LastStartTsUsec }},
	{maskBackends | maskBackendFolder | maskCommands | maskWrite | maskCmdCache | maskCommandSource | maskCmdSize, OpSum, func(d *statsData) *uint64 { return &d.backend.EllCacheWriteSize }},
	{maskBackends | maskBackendFolder | maskCommands | maskWrite | maskCmdCache | maskCommandSource | maskCmdTime, OpSum, func(d *statsData) *uint64 { return &d.backend.EllCacheWriteTime }},
	{maskBackends | maskBackendFolder | maskCommands | maskWrite | maskCmdDisk | maskCommandSource | maskCmdSize, OpSum, func(d *statsData) *uint64 { return &d.backend.EllDiskWriteSize }},
	{maskBackends | maskBackendFolder | maskCommands | maskWrite | maskCmdDisk | maskCommandSource | maskCmdTime, OpSum, func(d *statsData) *uint64 { return &d.backend.EllDiskWriteTime }},
	{maskBackends | maskBackendFolder | maskCommands | maskNotWrite | maskCmdCache | maskCommandSource | maskCmdSize, OpSum, func(d *statsData) *uint64 { return &d.backend.EllCacheReadSize }},
	{maskBackends | maskBackendFolder | maskCommands | maskNotWrite | maskCmdCache | maskCommandSource | maskCmdTime, OpSum, func(d *statsData) *uint64 { return &d.backend.EllCacheReadTime }},
	{maskBackends | maskBackendFolder | maskCommands | maskNotWrite | maskCmdDisk | maskCommandSource | maskCmdSize, OpSum, func(d *statsData) *uint64 { return &d.backend.EllDiskReadSize }},
	{maskBackends | maskBackendFolder | maskCommands | maskNotWrite | maskCmdDisk | maskCommandSource | maskCmdTime, OpSum, func(d *statsData) *uint64 { return &d.backend.EllDiskReadTime }},
	{maskBackends | maskBackendFolder | maskIo | maskBlocking | maskCurrentSize, OpSet, func(d *statsData) *uint64 { return &d.backend.IoBlockingSize }},
	{maskBackends | maskBackendFolder | maskIo | maskNonblocking | maskCurrentSize, OpSet, func(d *statsData) *uint64 { return &d.backend.IoNonblockingSize }},
	{maskTimestamp | maskTvSec, OpSet, func(d *statsData) *uint64 { return &d.node.TsSec }},
	{maskTimestamp | maskTvUsec, OpSet, func(d *statsData) *uint64 { return &d.node.TsUsec }},
	{maskProcfs | maskVm | maskLa, OpSet, func(d *statsData) *uint64 { return &d.node.La1 }},
	{maskProcfs | maskNet | maskNetInterfaces | maskNetInterfaceName | maskReceive | maskBytes, OpSum, func(d *statsData) *uint64 { return &d.node.RxBytes }},
	{maskProcfs | maskNet | maskNetInterfaces | maskNetInterfaceName | maskTransmit | maskBytes, OpSum, func(d *statsData) *uint64 { return &d.node.TxBytes }},
	{maskStats | maskStatName | maskCount, OpSet, func(d *statsData) *uint64 { return &d.statCommit.count }},
}

var statsStringRules = []stringRule{
	{maskBackends | maskBackendFolder | maskBackend | maskConfig | maskDataPath, func(d *statsData) *string { return &d.backend.DataPath }},
	{maskBackends | maskBackendFolder | maskBackend | maskConfig | maskFilePath, func(d *statsData) *string { return &d.backend.FilePath }},
}

// StatsParser extracts backend and node records from a monitor stat document
type StatsParser struct {
	parser Parser
	data   statsData

	// BackendStats holds one record per backend entry in document order
	BackendStats []BackendStat
	// NodeStat holds the node-level record
	NodeStat NodeStat
	// RofsErrors maps backend id to its EROFS stat_commit error count
	RofsErrors map[uint64]uint64

	// TypeMismatches counts node-level fields that arrived with the wrong
	// value type
	TypeMismatches uint64
}

// NewStatsParser creates a stats parser. A parser may be reused; each Parse
// call starts from a clean state.
func NewStatsParser() *StatsParser {
	sp := &StatsParser{
		RofsErrors: make(map[uint64]uint64),
	}
	sp.parser = newParser(statsFolders)
	sp.parser.onKey = sp.handleKey
	sp.parser.onUInt = sp.handleUInt
	sp.parser.onString = sp.handleString
	sp.parser.onEndObject = sp.handleEndObject
	return sp
}

// Parse consumes one monitor stat document
func (sp *StatsParser) Parse(data []byte) error {
	sp.BackendStats = sp.BackendStats[:0]
	sp.NodeStat = NodeStat{}
	sp.RofsErrors = make(map[uint64]uint64)
	sp.TypeMismatches = 0
	sp.data = statsData{}

	if err := sp.parser.Parse(data); err != nil {
		return fmt.Errorf("stat parse: %w", err)
	}

	sp.NodeStat = sp.data.node
	return nil
}

func (sp *StatsParser) handleKey(key string, depth int, keys uint64) {
	if keys == maskStats|maskStatName|rootBit && depth == 2 {
		var id, errno uint64
		if n, err := fmt.Sscanf(key, "eblob.%d.disk.stat_commit.errors.%d", &id, &errno); err == nil && n == 2 {
			sp.data.statCommit.backend = id
			sp.data.statCommit.errno = errno
		}
	}
}

func (sp *StatsParser) handleUInt(keys uint64, v uint64) {
	for i := range statsUIntRules {
		rule := &statsUIntRules[i]
		if keys != rule.mask|rootBit {
			continue
		}
		target := rule.field(&sp.data)
		switch rule.op {
		case OpSet:
			*target = v
		case OpSum:
			*target += v
		case OpMax:
			if v > *target {
				*target = v
			}
		}
		return
	}
	for i := range statsStringRules {
		if keys == statsStringRules[i].mask|rootBit {
			sp.noteMismatch(keys)
			return
		}
	}
}

func (sp *StatsParser) handleString(keys uint64, s string) {
	for i := range statsStringRules {
		rule := &statsStringRules[i]
		if keys == rule.mask|rootBit {
			*rule.field(&sp.data) = s
			return
		}
	}
	// a quoted value where a numeric field was expected: the field keeps
	// its zero value and the record is flagged
	for i := range statsUIntRules {
		if keys == statsUIntRules[i].mask|rootBit {
			sp.noteMismatch(keys)
			return
		}
	}
}

func (sp *StatsParser) noteMismatch(keys uint64) {
	if keys&maskBackends != 0 {
		sp.data.backend.ParseErrors++
	} else {
		sp.TypeMismatches++
	}
}

func (sp *StatsParser) handleEndObject(depth int, keys uint64) {
	if keys == maskBackends|maskBackendFolder|rootBit && depth == 3 {
		sp.BackendStats = append(sp.BackendStats, sp.data.backend)
		sp.data.backend = BackendStat{}
	} else if keys == maskStats|maskStatName|rootBit && depth == 3 {
		if sp.data.statCommit.errno == errnoEROFS {
			sp.RofsErrors[sp.data.statCommit.backend] = sp.data.statCommit.count
		}
		sp.data.statCommit = statCommitStat{}
	}
}
