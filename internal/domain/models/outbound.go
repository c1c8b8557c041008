package models

// OutboundMessageRequest represents requests to send a message manually via the API.
type OutboundMessageRequest struct {
	To         string `json:"to" binding:"required"`
	Message    string `json:"message" binding:"required"`
	PreviewURL bool   `json:"preview_url"`
}

// SplitRequest is the body of a lot split call.
type SplitRequest struct {
	ParentLotID        string `json:"-"`
	Quantity           int    `json:"quantity" binding:"required"`
	BuildingID         string `json:"building_id" binding:"required"`
	Name               string `json:"name"`
	DistributeExpenses bool   `json:"distribute_expenses"`
}

// SplitResult returns every record written by a split.
type SplitResult struct {
	Parent       Lot               `json:"parent"`
	Child        Lot               `json:"child"`
	Relationship SplitRelationship `json:"relationship"`
}
