package dto

type ViewportRequest struct {
	MinX float64 `json:"min_x" form:"min_x" validate:"gte=0"`
	MinY float64 `json:"min_y" form:"min_y" validate:"gte=0"`
	MaxX float64 `json:"max_x" form:"max_x" validate:"gtefield=MinX"`
	MaxY float64 `json:"max_y" form:"max_y" validate:"gtefield=MinY"`
	Zoom int     `json:"zoom" form:"zoom" validate:"gte=0,lte=20"`
}

type FrameRequest struct {
	Index      *int `json:"index" validate:"required,gte=0"`
	Continuous bool `json:"continuous"`
}

type TemplatesRequest struct {
	URLs []string `json:"urls" validate:"dive,required"`
}

type AnimationStatusResponse struct {
	State          string `json:"state"`
	CurrentFrame   int    `json:"current_frame"`
	NumberOfFrames int    `json:"number_of_frames"`
	LoadedFrames   int    `json:"loaded_frames"`
	LastLoad       string `json:"last_load,omitempty"`
	LastError      string `json:"last_error,omitempty"`
}

type CanAnimateResponse struct {
	CanAnimate bool `json:"can_animate"`
}

type CachedTile struct {
	Z      int    `json:"z"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Frame  int    `json:"frame"`
	Format string `json:"format"`
}

type CachedTilesResponse struct {
	Animation []CachedTile `json:"animation"`
	Static    []CachedTile `json:"static"`
}
