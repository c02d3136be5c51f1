package signer

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/awesome-doge/settlement-core/go/router"
)

type fakeClient struct {
	addr common.Address
}

func (f *fakeClient) Address() common.Address { return f.addr }
func (f *fakeClient) ChainID() *big.Int        { return big.NewInt(84532) }
func (f *fakeClient) ReadContract(ctx context.Context, contract common.Address, contractABI abi.ABI, method string, args ...interface{}) (interface{}, error) {
	return nil, nil
}
func (f *fakeClient) WriteContract(ctx context.Context, contract common.Address, contractABI abi.ABI, method string, gasLimit uint64, args ...interface{}) (common.Hash, error) {
	return common.Hash{}, nil
}
func (f *fakeClient) SimulateContract(ctx context.Context, contract common.Address, contractABI abi.ABI, method string, args ...interface{}) error {
	return nil
}
func (f *fakeClient) WaitForTransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return nil, nil
}
func (f *fakeClient) GetBalance(ctx context.Context, account, token common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}
func (f *fakeClient) GetCode(ctx context.Context, account common.Address) ([]byte, error) {
	return nil, nil
}
func (f *fakeClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

var _ router.Client = (*fakeClient)(nil)

func TestPoolAcquireRelease(t *testing.T) {
	p := New(zap.NewNop())
	client := &fakeClient{addr: common.HexToAddress("0x1111111111111111111111111111111111111111")}
	p.AddClient("base-sepolia", client)

	lease, err := p.Acquire(context.Background(), "base-sepolia", time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if lease.Client().Address() != client.addr {
		t.Error("leased client does not match registered client")
	}
	p.Release(lease, OutcomeSuccess, time.Minute)
}

func TestPoolAcquireExclusive(t *testing.T) {
	p := New(zap.NewNop())
	client := &fakeClient{addr: common.HexToAddress("0x1111111111111111111111111111111111111111")}
	p.AddClient("base-sepolia", client)

	lease, err := p.Acquire(context.Background(), "base-sepolia", time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	_, err = p.Acquire(context.Background(), "base-sepolia", 100*time.Millisecond)
	if err == nil {
		t.Error("expected NO_SIGNER_AVAILABLE when the only key is already leased")
	}

	p.Release(lease, OutcomeSuccess, time.Minute)

	lease2, err := p.Acquire(context.Background(), "base-sepolia", time.Second)
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	p.Release(lease2, OutcomeSuccess, time.Minute)
}

func TestPoolUnknownNetwork(t *testing.T) {
	p := New(zap.NewNop())
	_, err := p.Acquire(context.Background(), "nonexistent", time.Second)
	if err == nil {
		t.Error("expected error for unregistered network")
	}
}

func TestPoolQuarantineAfterConsecutiveFailures(t *testing.T) {
	p := New(zap.NewNop())
	client := &fakeClient{addr: common.HexToAddress("0x1111111111111111111111111111111111111111")}
	p.AddClient("base-sepolia", client)

	for i := 0; i < quarantineThreshold; i++ {
		lease, err := p.Acquire(context.Background(), "base-sepolia", time.Second)
		if err != nil {
			t.Fatalf("Acquire: %v", err)
		}
		p.Release(lease, OutcomeFailure, time.Minute)
	}

	_, err := p.Acquire(context.Background(), "base-sepolia", 200*time.Millisecond)
	if err == nil {
		t.Error("expected quarantined key to be unavailable")
	}
}

func TestPoolExclusivityUnderConcurrency(t *testing.T) {
	p := New(zap.NewNop())
	client := &fakeClient{addr: common.HexToAddress("0x1111111111111111111111111111111111111111")}
	p.AddClient("base-sepolia", client)

	var inFlight int32
	var mu sync.Mutex
	maxObserved := 0

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease, err := p.Acquire(context.Background(), "base-sepolia", 2*time.Second)
			if err != nil {
				return
			}
			mu.Lock()
			inFlight++
			if int(inFlight) > maxObserved {
				maxObserved = int(inFlight)
			}
			mu.Unlock()

			time.Sleep(10 * time.Millisecond)

			mu.Lock()
			inFlight--
			mu.Unlock()
			p.Release(lease, OutcomeSuccess, time.Minute)
		}()
	}
	wg.Wait()

	if maxObserved > 1 {
		t.Errorf("observed %d concurrent leases on a single key, want at most 1", maxObserved)
	}
}
