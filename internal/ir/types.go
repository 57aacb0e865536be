package ir

import (
	"github.com/gagliardetto/solana-go"
)

// Envelope is an inbound cross-chain message as delivered by the endpoint.
type Envelope struct {
	SrcEID    uint32   `json:"src_eid"`
	Sender    Bytes32  `json:"sender"`
	Nonce     uint64   `json:"nonce"`
	GUID      Bytes32  `json:"guid"`
	Message   HexBytes `json:"message"`
	ExtraData HexBytes `json:"extra_data,omitempty"`
}

// SlotKey identifies a sequence slot: the (receiver, source chain, sender,
// nonce) tuple whose one-time consumption provides replay protection.
type SlotKey struct {
	Receiver solana.PublicKey `json:"receiver"`
	SrcEID   uint32           `json:"src_eid"`
	Sender   Bytes32          `json:"sender"`
	Nonce    uint64           `json:"nonce"`
}

// Slot returns the sequence slot this envelope consumes at receiver.
func (e Envelope) Slot(receiver solana.PublicKey) SlotKey {
	return SlotKey{Receiver: receiver, SrcEID: e.SrcEID, Sender: e.Sender, Nonce: e.Nonce}
}

// SlotStatus records how a sequence slot was spent.
type SlotStatus string

const (
	// SlotConsumed marks a slot whose message executed successfully.
	SlotConsumed SlotStatus = "consumed"

	// SlotFailed marks a slot spent by a message that failed after
	// consumption. It is never retried automatically.
	SlotFailed SlotStatus = "failed"
)

// SlotRecord is a spent sequence slot.
type SlotRecord struct {
	Key         SlotKey    `json:"key"`
	GUID        Bytes32    `json:"guid"`
	PayloadHash Bytes32    `json:"payload_hash"`
	Status      SlotStatus `json:"status"`
	ConsumedAt  int64      `json:"consumed_at"`
}

// Resource is one entry of a resource list: an address with its signer and
// writable attributes. Order within a list is significant.
type Resource struct {
	PublicKey  solana.PublicKey `json:"pubkey"`
	IsSigner   bool             `json:"is_signer"`
	IsWritable bool             `json:"is_writable"`
}

// AccountMeta converts the resource to a solana-go account meta.
func (r Resource) AccountMeta() *solana.AccountMeta {
	return solana.NewAccountMeta(r.PublicKey, r.IsWritable, r.IsSigner)
}

// Canonical projects the resource onto the canonical value space.
func (r Resource) Canonical() map[string]any {
	return map[string]any{
		"pubkey":      r.PublicKey.String(),
		"is_signer":   r.IsSigner,
		"is_writable": r.IsWritable,
	}
}

// Writable returns a writable, non-signer resource.
func Writable(pk solana.PublicKey) Resource {
	return Resource{PublicKey: pk, IsWritable: true}
}

// ReadOnly returns a read-only, non-signer resource.
func ReadOnly(pk solana.PublicKey) Resource {
	return Resource{PublicKey: pk}
}

// ResourcesFromMetas converts solana-go account metas back to resources.
func ResourcesFromMetas(metas solana.AccountMetaSlice) []Resource {
	out := make([]Resource, len(metas))
	for i, m := range metas {
		out[i] = Resource{PublicKey: m.PublicKey, IsSigner: m.IsSigner, IsWritable: m.IsWritable}
	}
	return out
}

// Config is the deployment configuration record. There is exactly one per
// deployment; it is written by administrative tooling and read everywhere.
type Config struct {
	ProgramID              solana.PublicKey `json:"program_id"`
	Store                  solana.PublicKey `json:"store"`
	StoreBump              uint8            `json:"store_bump"`
	Admin                  solana.PublicKey `json:"admin"`
	EndpointProgram        solana.PublicKey `json:"endpoint_program"`
	Mint                   solana.PublicKey `json:"mint"`
	TokenProgram           solana.PublicKey `json:"token_program"`
	AssociatedTokenProgram solana.PublicKey `json:"associated_token_program"`
	SystemProgram          solana.PublicKey `json:"system_program"`
	Lending                LendingAccounts  `json:"lending"`
	LookupTable            solana.PublicKey `json:"lookup_table"`
}

// LendingAccounts are the fixed accounts of the external lending protocol's
// pool that deposits are routed into.
type LendingAccounts struct {
	Program                          solana.PublicKey `json:"program"`
	LiquidityProgram                 solana.PublicKey `json:"liquidity_program"`
	Admin                            solana.PublicKey `json:"admin"`
	Lending                          solana.PublicKey `json:"lending"`
	FTokenMint                       solana.PublicKey `json:"f_token_mint"`
	SupplyTokenReservesLiquidity     solana.PublicKey `json:"supply_token_reserves_liquidity"`
	LendingSupplyPositionOnLiquidity solana.PublicKey `json:"lending_supply_position_on_liquidity"`
	RateModel                        solana.PublicKey `json:"rate_model"`
	Vault                            solana.PublicKey `json:"vault"`
	Liquidity                        solana.PublicKey `json:"liquidity"`
	RewardsRateModel                 solana.PublicKey `json:"rewards_rate_model"`
}

// Peer is the single trusted remote sender for a source chain.
type Peer struct {
	SrcEID  uint32  `json:"src_eid"`
	Address Bytes32 `json:"address"`
}

// AppState holds the counter/text variant's application fields.
type AppState struct {
	Text    string `json:"text"`
	Counter uint64 `json:"counter"`
}

// LedgerRecord is the cumulative activity of one remote sender.
// TotalDeposited and DepositCount never decrease and never wrap.
type LedgerRecord struct {
	Sender         Address20 `json:"sender"`
	TotalDeposited uint64    `json:"total_deposited"`
	DepositCount   uint32    `json:"deposit_count"`
	LastUpdated    int64     `json:"last_updated"`
	CreatedAt      int64     `json:"created_at"`
}

// DepositEvent is the observable notification emitted for each deposit.
// It is append-only; observers reconcile from it without reading the ledger.
type DepositEvent struct {
	Seq           int64     `json:"seq"`
	GUID          Bytes32   `json:"guid"`
	Sender        Address20 `json:"sender"`
	Amount        uint64    `json:"amount"`
	NewTotal      uint64    `json:"new_total"`
	DepositIndex  uint32    `json:"deposit_index"`
	Timestamp     int64     `json:"timestamp"`
	CorrelationID *Bytes32  `json:"correlation_id,omitempty"`
}

// OutboundMessage is a composed message queued for delivery by the endpoint
// (the acknowledgement path).
type OutboundMessage struct {
	Seq     int64            `json:"seq"`
	GUID    Bytes32          `json:"guid"`
	Index   uint16           `json:"index"`
	From    solana.PublicKey `json:"from"`
	To      solana.PublicKey `json:"to"`
	Message HexBytes         `json:"message"`
}

// ExternalCall is a call issued into an external program on behalf of the
// receiver's authority.
type ExternalCall struct {
	Seq       int64            `json:"seq"`
	GUID      Bytes32          `json:"guid"`
	ProgramID solana.PublicKey `json:"program_id"`
	Accounts  []Resource       `json:"accounts"`
	Data      HexBytes         `json:"data"`
}

// FailedMessage records a message whose execution failed after its slot was
// consumed. The slot stays spent; remediation happens off-path.
type FailedMessage struct {
	Envelope Envelope  `json:"envelope"`
	Stage    string    `json:"stage"`
	Code     ErrorCode `json:"code"`
	Message  string    `json:"message"`
	FailedAt int64     `json:"failed_at"`
}
