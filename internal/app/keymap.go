package app

// Key binding constants used by the key handlers.
const (
	KeyQuit      = "q"
	KeyQuitUpper = "Q"
	KeyCtrlC     = "ctrl+c"
	KeySpace     = " "
	KeyTab       = "tab"
	KeyShiftTab  = "shift+tab"
	KeyEnter     = "enter"
	KeyEsc       = "esc"
	KeyUp        = "up"
	KeyDown      = "down"
	KeyLeft      = "left"
	KeyRight     = "right"
	KeyJ         = "j"
	KeyK         = "k"
	KeyH         = "h"
	KeyL         = "l"
	KeyPgUp      = "pgup"
	KeyPgDown    = "pgdown"

	// Chat view.
	KeyExport      = "ctrl+e"
	KeyToggleVoice = "ctrl+v"

	// Settings view.
	KeyPrevSection = "["
	KeyNextSection = "]"
	KeySave        = "s"
	KeyReset       = "R"
	KeyUpload      = "u"
	KeyDelete      = "d"
	KeyTopics      = "t"

	// Voice view.
	KeyExportSegments = "x"
)
