package waves

import "github.com/pixil98/go-bastion/internal/defs"

// table is the fixed 50-wave composition cycle. Waves 10, 20, 30, 40
// and 50 are the milestone waves and lean on the heavy kinds.
var table = [TablePeriod][]Group{
	{{defs.HostileGrunt, 6}},
	{{defs.HostileGrunt, 9}},
	{{defs.HostileGrunt, 8}, {defs.HostileRunner, 3}},
	{{defs.HostileRunner, 8}},
	{{defs.HostileGrunt, 10}, {defs.HostileRunner, 5}},
	{{defs.HostileBrute, 3}},
	{{defs.HostileGrunt, 12}, {defs.HostileBrute, 2}},
	{{defs.HostileRunner, 12}},
	{{defs.HostileShade, 6}, {defs.HostileGrunt, 8}},
	{{defs.HostileColossus, 1}}, // wave 10
	{{defs.HostileSwarmling, 20}},
	{{defs.HostileGrunt, 14}, {defs.HostileShade, 5}},
	{{defs.HostileBrute, 5}, {defs.HostileRunner, 6}},
	{{defs.HostileCarrier, 3}},
	{{defs.HostileRunner, 16}},
	{{defs.HostileShade, 10}},
	{{defs.HostileGrunt, 18}, {defs.HostileBrute, 4}},
	{{defs.HostileCarrier, 4}, {defs.HostileSwarmling, 10}},
	{{defs.HostileBrute, 7}},
	{{defs.HostileColossus, 1}, {defs.HostileBrute, 3}}, // wave 20
	{{defs.HostileRunner, 18}, {defs.HostileShade, 6}},
	{{defs.HostileSwarmling, 30}},
	{{defs.HostileGrunt, 22}},
	{{defs.HostileCarrier, 6}},
	{{defs.HostileBrute, 8}, {defs.HostileShade, 6}},
	{{defs.HostileRunner, 20}},
	{{defs.HostileShade, 14}},
	{{defs.HostileGrunt, 20}, {defs.HostileCarrier, 4}},
	{{defs.HostileBrute, 10}},
	{{defs.HostileColossus, 2}}, // wave 30
	{{defs.HostileSwarmling, 40}},
	{{defs.HostileRunner, 24}},
	{{defs.HostileCarrier, 7}, {defs.HostileRunner, 8}},
	{{defs.HostileShade, 16}, {defs.HostileGrunt, 10}},
	{{defs.HostileBrute, 12}},
	{{defs.HostileGrunt, 28}},
	{{defs.HostileCarrier, 8}},
	{{defs.HostileShade, 18}, {defs.HostileRunner, 10}},
	{{defs.HostileBrute, 10}, {defs.HostileCarrier, 5}},
	{{defs.HostileColossus, 2}, {defs.HostileCarrier, 3}}, // wave 40
	{{defs.HostileRunner, 28}},
	{{defs.HostileGrunt, 30}, {defs.HostileShade, 8}},
	{{defs.HostileSwarmling, 60}},
	{{defs.HostileBrute, 14}},
	{{defs.HostileCarrier, 10}},
	{{defs.HostileShade, 22}},
	{{defs.HostileRunner, 26}, {defs.HostileBrute, 8}},
	{{defs.HostileGrunt, 34}, {defs.HostileCarrier, 6}},
	{{defs.HostileBrute, 16}, {defs.HostileShade, 10}},
	{{defs.HostileColossus, 3}}, // wave 50
}
