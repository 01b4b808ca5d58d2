package logging

import (
	"log"
	"os"
)

var (
	Internal = log.New(os.Stdout, "[internal] ", log.LstdFlags)
	HTTP     = log.New(os.Stdout, "[http] ", log.LstdFlags)
	Store    = log.New(os.Stdout, "[store] ", log.LstdFlags)
	Files    = log.New(os.Stdout, "[files] ", log.LstdFlags)
)
