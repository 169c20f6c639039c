package app

import (
	"github.com/specialistvlad/dungeonjob/internal/registry"
	"github.com/specialistvlad/dungeonjob/modules/fsarchive"
	"github.com/specialistvlad/dungeonjob/modules/presigned"
	"github.com/specialistvlad/dungeonjob/modules/print"
	"github.com/specialistvlad/dungeonjob/modules/redispool"
	"github.com/specialistvlad/dungeonjob/modules/s3"
	"github.com/specialistvlad/dungeonjob/modules/socketio"
	"github.com/specialistvlad/dungeonjob/modules/staticpool"
)

// coreModules is the definitive list of all backends that are compiled into
// the dungeonjob binary.
var coreModules = []registry.Module{
	&staticpool.Module{},
	&redispool.Module{},
	&fsarchive.Module{},
	&s3.Module{},
	&presigned.Module{},
	&print.Module{},
	&socketio.Module{},
}
