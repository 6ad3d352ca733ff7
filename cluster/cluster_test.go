package cluster

import (
	"testing"
)

func TestSendRecvRoundTrip(t *testing.T) {
	cl := NewCluster(2)
	done := make(chan struct{})
	var got []int
	go func() {
		c := cl.Comm(1)
		got = Recv[int](c, 0, 7)
		close(done)
	}()
	Send(cl.Comm(0), 1, 7, []int{1, 2, 3})
	<-done
	if len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Fatalf("got %v, want [1 2 3]", got)
	}
}

func TestSendClonesPayload(t *testing.T) {
	cl := NewCluster(2)
	src := []int{1, 2, 3}
	done := make(chan []int)
	go func() { done <- Recv[int](cl.Comm(1), 0, 1) }()
	Send(cl.Comm(0), 1, 1, src)
	got := <-done
	src[0] = 999
	if got[0] == 999 {
		t.Fatal("receiver aliases sender's backing array")
	}
}

func TestBarrierReleasesAllRanks(t *testing.T) {
	errs := Run(4, func(c *Comm) error {
		c.Barrier()
		return nil
	})
	for i, err := range errs {
		if err != nil {
			t.Fatalf("rank %d: %v", i, err)
		}
	}
}

func TestAllreduceSumFloat64(t *testing.T) {
	const n = 5
	results := make([][]float64, n)
	errs := Run(n, func(c *Comm) error {
		local := []float64{float64(c.Rank() + 1)}
		results[c.Rank()] = AllreduceSumFloat64(c, TagSummarizeCount, local)
		return nil
	})
	for i, err := range errs {
		if err != nil {
			t.Fatalf("rank %d: %v", i, err)
		}
	}
	want := 1.0 + 2 + 3 + 4 + 5
	for r, res := range results {
		if res[0] != want {
			t.Errorf("rank %d: sum = %v, want %v", r, res[0], want)
		}
	}
}

func TestBcastDeliversRootData(t *testing.T) {
	const n = 4
	results := make([][]string, n)
	errs := Run(n, func(c *Comm) error {
		var payload []string
		if c.Rank() == 2 {
			payload = []string{"hello"}
		}
		results[c.Rank()] = Bcast(c, 2, TagMergeCount, payload)
		return nil
	})
	for i, err := range errs {
		if err != nil {
			t.Fatalf("rank %d: %v", i, err)
		}
	}
	for r, res := range results {
		if len(res) != 1 || res[0] != "hello" {
			t.Errorf("rank %d: got %v, want [hello]", r, res)
		}
	}
}

func TestAlltoallvSparseSkipsZeroCounts(t *testing.T) {
	const n = 3
	// rank 0 sends to rank 2 only; ranks 1 and 2 send nothing.
	sendCountsByRank := [][]int{
		{0, 0, 5},
		{0, 0, 0},
		{0, 0, 0},
	}
	results := make([][][]int, n)
	errs := Run(n, func(c *Comm) error {
		sendCounts := sendCountsByRank[c.Rank()]
		recvCounts := ExchangeCounts(c, TagExchangeCountsOtherBase, sendCounts)
		sendData := make([][]int, n)
		if sendCounts[2] > 0 && c.Rank() == 0 {
			sendData[2] = []int{1, 2, 3, 4, 5}
		}
		results[c.Rank()] = Alltoallv(c, TagExchangeBaseOther, sendCounts, recvCounts, sendData)
		return nil
	})
	for i, err := range errs {
		if err != nil {
			t.Fatalf("rank %d: %v", i, err)
		}
	}
	got := results[2][0]
	if len(got) != 5 || got[4] != 5 {
		t.Fatalf("rank 2 received %v from rank 0, want [1 2 3 4 5]", got)
	}
	if results[1][0] != nil {
		t.Fatalf("rank 1 should have received nothing from rank 0, got %v", results[1][0])
	}
}
