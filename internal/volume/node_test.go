package volume

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewNodeTableAllFree(t *testing.T) {
	nt := newNodeTable(4)
	require.Equal(t, 4, nt.countFree())
	for i, r := range nt.records {
		require.EqualValues(t, i, r.blockIndex)
		require.Equal(t, nodeFree, r.next)
	}
}

func TestAllocateChainLowestIndexFirst(t *testing.T) {
	nt := newNodeTable(4)
	indices, err := nt.allocateChain(3)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2}, indices)
	require.Equal(t, 1, nt.countFree())

	require.EqualValues(t, 1, nt.records[0].next)
	require.EqualValues(t, 2, nt.records[1].next)
	require.Equal(t, nodeEnd, nt.records[2].next)
	require.Equal(t, nodeFree, nt.records[3].next)
}

func TestAllocateChainZero(t *testing.T) {
	nt := newNodeTable(4)
	indices, err := nt.allocateChain(0)
	require.NoError(t, err)
	require.Nil(t, indices)
	require.Equal(t, 4, nt.countFree())
}

func TestAllocateChainInsufficientSpace(t *testing.T) {
	nt := newNodeTable(2)
	_, err := nt.allocateChain(3)
	require.ErrorContains(t, err, "need 3 free blocks")

	var verr *Error
	require.ErrorAs(t, err, &verr)
	require.Equal(t, KindNoSpace, verr.Kind)
	require.Equal(t, 2, nt.countFree())
}

func TestAllocateChainPrefersGapsLeftByRelease(t *testing.T) {
	nt := newNodeTable(4)
	first, err := nt.allocateChain(4)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2, 3}, first)

	nt.release([]int{1})
	second, err := nt.allocateChain(1)
	require.NoError(t, err)
	require.Equal(t, []int{1}, second)
}

func TestFollowChainDoesNotMutate(t *testing.T) {
	nt := newNodeTable(3)
	indices, err := nt.allocateChain(3)
	require.NoError(t, err)

	visited, err := nt.followChain(indices[0])
	require.NoError(t, err)
	require.Equal(t, indices, visited)
	require.Equal(t, 0, nt.countFree())
}

func TestFreeChainReturnsToFree(t *testing.T) {
	nt := newNodeTable(3)
	indices, err := nt.allocateChain(3)
	require.NoError(t, err)

	visited, err := nt.freeChain(indices[0])
	require.NoError(t, err)
	require.Equal(t, indices, visited)
	require.Equal(t, 3, nt.countFree())
}

func TestWalkNegativeHeadIsNoOp(t *testing.T) {
	nt := newNodeTable(2)
	visited, err := nt.followChain(-1)
	require.NoError(t, err)
	require.Nil(t, visited)
}

func TestWalkDetectsFreeMidChain(t *testing.T) {
	nt := newNodeTable(3)
	nt.records[0] = nodeRecord{blockIndex: 0, next: 1}
	nt.records[1] = nodeRecord{blockIndex: 1, next: nodeFree}

	_, err := nt.followChain(0)
	require.ErrorContains(t, err, "free mid-chain")
	var verr *Error
	require.ErrorAs(t, err, &verr)
	require.Equal(t, KindCorrupt, verr.Kind)
}

func TestWalkDetectsOutOfRangeIndex(t *testing.T) {
	nt := newNodeTable(2)
	nt.records[0] = nodeRecord{blockIndex: 0, next: 9}

	_, err := nt.followChain(0)
	require.ErrorContains(t, err, "out of range")
}

func TestWalkDetectsInvalidNegativeNext(t *testing.T) {
	nt := newNodeTable(2)
	nt.records[0] = nodeRecord{blockIndex: 0, next: -3}

	_, err := nt.followChain(0)
	require.ErrorContains(t, err, "invalid next")
}

func TestWalkOutOfRangeHead(t *testing.T) {
	nt := newNodeTable(2)
	_, err := nt.followChain(5)
	require.ErrorContains(t, err, "out of range")
}
