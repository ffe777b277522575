package notifications

import (
	"github.com/angelmondragon/marketplace-engine/pkg/enums"
	"github.com/google/uuid"
)

// Realtime topics. The transport layer owns the sockets; the engine only
// publishes to these names.
func UserTopic(userID uuid.UUID) string { return "user:" + userID.String() }

func ZoneTopic(zone string) string { return "zone:" + zone }

func RoleTopic(role enums.ActorRole) string { return "role:" + string(role) }

func DriverTopic(driverID uuid.UUID) string { return "driver:" + driverID.String() }

func CompanyTopic(companyID uuid.UUID) string { return "company:" + companyID.String() }
