package skill

import (
	"fmt"
	"strings"

	"github.com/MrJohnZoidberg/Snips-Bluetooth/internal/correlation"
)

// Spoken responses.
const (
	phraseError             = "Es gab einen Fehler."
	phraseUnknownDevice     = "Ich kenne das Gerät nicht."
	phraseScanStarted       = "Es wird 30 Sekunden nach neuen Geräten gesucht."
	phraseScanFailed        = "Die Gerätesuche konnte nicht gestartet werden."
	phraseNothingDiscovered = "Es wurde kein Gerät entdeckt."
	phraseNothingPaired     = "Es ist kein Gerät gekoppelt."
	phraseNothingConnected  = "Es ist kein Gerät verbunden."
)

const nameSeparator = ", "

func phraseRoomNotConfigured(room string) string {
	return fmt.Sprintf("Der Raum %s wurde noch nicht konfiguriert.", room)
}

// phraseDiscoveredNotice is spoken after the vocabulary injection finished.
func phraseDiscoveredNotice(names []string) string {
	return "Es wurden folgende Geräte entdeckt: " + strings.Join(names, nameSeparator)
}

// phraseDiscoveredAnswer answers the DevicesDiscovered intent.
func phraseDiscoveredAnswer(names []string) string {
	if len(names) == 0 {
		return phraseNothingDiscovered
	}
	return "Folgende Geräte wurden entdeckt: " + strings.Join(names, nameSeparator)
}

func phrasePairedAnswer(names []string) string {
	if len(names) == 0 {
		return phraseNothingPaired
	}
	return "Folgende Geräte sind gekoppelt: " + strings.Join(names, nameSeparator)
}

func phraseConnectedAnswer(names []string) string {
	if len(names) == 0 {
		return phraseNothingConnected
	}
	return "Folgende Geräte sind verbunden: " + strings.Join(names, nameSeparator)
}

// deviceResultFormats holds the success and failure text per command kind.
var deviceResultFormats = map[correlation.Kind][2]string{
	correlation.KindConnect: {
		"Das Gerät %s ist jetzt verbunden.",
		"Das Gerät %s konnte nicht verbunden werden.",
	},
	correlation.KindDisconnect: {
		"Das Gerät %s wurde getrennt.",
		"Das Gerät %s konnte nicht getrennt werden.",
	},
	correlation.KindRemove: {
		"Das Gerät %s wurde aus der Datenbank entfernt.",
		"Das Gerät %s konnte nicht aus der Datenbank entfernt werden.",
	},
}

func phraseDeviceResult(kind correlation.Kind, name string, ok bool) string {
	formats, known := deviceResultFormats[kind]
	if !known {
		return phraseError
	}
	if ok {
		return fmt.Sprintf(formats[0], name)
	}
	return fmt.Sprintf(formats[1], name)
}
