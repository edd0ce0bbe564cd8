package models

type MinesCreateRequest struct {
	Stake     int64  `json:"stake" binding:"required,min=1"`
	MineCount int    `json:"mine_count" binding:"required,min=1,max=24"`
	Token     string `json:"token" binding:"required"`
}

type MinesRevealRequest struct {
	Cell *int `json:"cell" binding:"required,min=0,max=24"`
}

type JoinRequest struct {
	Stake      int64  `json:"stake" binding:"required,min=1"`
	TargetX100 int64  `json:"target_x100"`
	Token      string `json:"token" binding:"required"`
}

type PokerInitRequest struct {
	Stake int64  `json:"stake" binding:"required,min=1"`
	Token string `json:"token" binding:"required"`
}

type PokerDrawRequest struct {
	HoldMask *int `json:"hold_mask" binding:"required,min=0,max=31"`
}

type VerifyRequest struct {
	GameType    GameType `json:"game_type" binding:"required"`
	PublicSeed  string   `json:"public_seed" binding:"required"`
	PrivateSeed string   `json:"private_seed" binding:"required"`
	Commitment  string   `json:"commitment" binding:"required"`
	MineCount   int      `json:"mine_count"`
}

type VerifyResponse struct {
	Valid      bool     `json:"valid"`
	ResultX100 int64    `json:"result_x100,omitempty"`
	Multiplier string   `json:"multiplier,omitempty"`
	MineCells  []int    `json:"mine_cells,omitempty"`
	Deck       []string `json:"deck,omitempty"`
}
