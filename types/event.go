package types

// Event is a ledger-emitted event: the storage object representing the
// event and the contract that created it.
type Event struct {
	Event   StorageReference `json:"event"`
	Creator StorageReference `json:"creator"`
}
