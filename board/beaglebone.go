package board

// BeagleBoneBlack returns the description of a BeagleBone Black with the
// default device tree. PWM pins still need config-pin before use.
func BeagleBoneBlack() *Board {
	return &Board{
		Name:          "BeagleBone Black",
		ADCMaxRaw:     4095,
		ADCMaxVoltage: 1.8,

		GPIO: map[string]int{
			"P8_3": 38, "P8_4": 39, "P8_5": 34, "P8_6": 35,
			"P8_7": 66, "P8_8": 67, "P8_9": 69, "P8_10": 68,
			"P8_11": 45, "P8_12": 44, "P8_13": 23, "P8_14": 26,
			"P8_15": 47, "P8_16": 46, "P8_17": 27, "P8_18": 65,
			"P8_19": 22, "P8_20": 63, "P8_21": 62, "P8_22": 37,
			"P8_23": 36, "P8_24": 33, "P8_25": 32, "P8_26": 61,
			"P8_27": 86, "P8_28": 88, "P8_29": 87, "P8_30": 89,
			"P8_31": 10, "P8_32": 11, "P8_33": 9, "P8_34": 81,
			"P8_35": 8, "P8_36": 80, "P8_37": 78, "P8_38": 79,
			"P8_39": 76, "P8_40": 77, "P8_41": 74, "P8_42": 75,
			"P8_43": 72, "P8_44": 73, "P8_45": 70, "P8_46": 71,

			"P9_11": 30, "P9_12": 60, "P9_13": 31, "P9_14": 50,
			"P9_15": 48, "P9_16": 51, "P9_17": 4, "P9_18": 5,
			"P9_21": 3, "P9_22": 2, "P9_23": 49, "P9_24": 15,
			"P9_25": 117, "P9_26": 14, "P9_27": 115, "P9_28": 113,
			"P9_29": 111, "P9_30": 112, "P9_31": 110, "P9_41": 20,
			"P9_42": 7,
		},

		/* Only the EHRPWM modules have a stable chip numbering */
		PWM: map[string]PWMOutput{
			"EHRPWM0A": {Chip: 0, Channel: 0},
			"EHRPWM0B": {Chip: 0, Channel: 1},
			"EHRPWM1A": {Chip: 2, Channel: 0},
			"EHRPWM1B": {Chip: 2, Channel: 1},
			"EHRPWM2A": {Chip: 4, Channel: 0},
			"EHRPWM2B": {Chip: 4, Channel: 1},
		},

		ADC: map[string]int{
			"AIN0": 0, "AIN1": 1, "AIN2": 2, "AIN3": 3,
			"AIN4": 4, "AIN5": 5, "AIN6": 6, "AIN7": 7,
		},
	}
}
