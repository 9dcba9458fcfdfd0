package desfire

// APDU framing bytes for the wrapped DESFire command set.
// The reader forwards these payloads to the card verbatim.
const (
	claWrapped      = 0x90
	insAuthenticate = 0xAA
	insContinue     = 0xAF
)

// AuthenticateCommand builds the AuthenticateAES APDU that initiates
// the handshake with the given key index:
//
//	90 AA 00 00 01 <keyIndex>
func AuthenticateCommand(keyIndex uint8) []byte {
	return []byte{claWrapped, insAuthenticate, 0x00, 0x00, 0x01, keyIndex}
}

// ContinueCommand wraps the 32-byte encrypted challenge into the
// AdditionalFrame APDU:
//
//	90 AF 00 00 20 <challenge>
func ContinueCommand(challenge []byte) ([]byte, error) {
	if len(challenge) != ChallengeSize {
		return nil, &ErrInvalidLength{What: "challenge", Want: ChallengeSize, Got: len(challenge)}
	}
	cmd := make([]byte, 0, 5+ChallengeSize)
	cmd = append(cmd, claWrapped, insContinue, 0x00, 0x00, byte(ChallengeSize))
	cmd = append(cmd, challenge...)
	return cmd, nil
}
